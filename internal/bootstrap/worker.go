package bootstrap

import (
	"calsync_server/adapter/in/worker"
	"calsync_server/config"
	"calsync_server/pkg/logger"
)

// Worker bundles the background schedulers behind a single Start/Stop.
type Worker struct {
	scheduler *worker.Scheduler
}

// NewWorker builds the scheduler process.
func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "calsync-worker",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	scheduler := worker.NewScheduler(
		deps.ConnRepo,
		deps.SyncService,
		deps.ReminderScan,
		cfg.SyncInterval,
		cfg.ReminderScanInterval,
		cfg.SyncConcurrency,
	)

	return &Worker{scheduler: scheduler}, cleanup, nil
}

// Start starts the schedulers.
func (w *Worker) Start() error {
	return w.scheduler.Start()
}

// Stop stops the schedulers and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.scheduler.Stop()
}
