package mongodb

import (
	"context"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Run Log Adapter
// =============================================================================

const (
	collectionRunLogs = "sync_run_logs"

	// Run logs expire after 30 days via the TTL index on started_at.
	runLogTTL = 30 * 24 * time.Hour
)

// RunLogAdapter implements out.RunLogRepository using MongoDB. The
// collection is append-only; records age out through the TTL index
// instead of explicit cleanup.
type RunLogAdapter struct {
	collection *mongo.Collection
}

var _ out.RunLogRepository = (*RunLogAdapter)(nil)

// NewRunLogAdapter creates a new MongoDB run log adapter.
func NewRunLogAdapter(db *mongo.Database) *RunLogAdapter {
	return &RunLogAdapter{collection: db.Collection(collectionRunLogs)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *RunLogAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "connection_id", Value: 1},
				{Key: "started_at", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "started_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(runLogTTL.Seconds())), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

// runLogDocument represents the MongoDB document structure.
type runLogDocument struct {
	ID           string    `bson:"id"`
	ConnectionID int64     `bson:"connection_id"`
	RunType      string    `bson:"run_type"`
	Imported     int       `bson:"imported"`
	Exported     int       `bson:"exported"`
	Updated      int       `bson:"updated"`
	Deleted      int       `bson:"deleted"`
	Conflicted   int       `bson:"conflicted"`
	Errored      int       `bson:"errored"`
	Error        string    `bson:"error,omitempty"`
	DurationMs   int64     `bson:"duration_ms"`
	StartedAt    time.Time `bson:"started_at"`
}

func toDocument(run *domain.SyncRunLog) *runLogDocument {
	return &runLogDocument{
		ID:           run.ID,
		ConnectionID: run.ConnectionID,
		RunType:      string(run.RunType),
		Imported:     run.Stats.Imported,
		Exported:     run.Stats.Exported,
		Updated:      run.Stats.Updated,
		Deleted:      run.Stats.Deleted,
		Conflicted:   run.Stats.Conflicted,
		Errored:      run.Stats.Errored,
		Error:        run.Error,
		DurationMs:   run.DurationMs,
		StartedAt:    run.StartedAt,
	}
}

func (d *runLogDocument) toEntity() *domain.SyncRunLog {
	return &domain.SyncRunLog{
		ID:           d.ID,
		ConnectionID: d.ConnectionID,
		RunType:      domain.RunType(d.RunType),
		Stats: domain.RunStats{
			Imported:   d.Imported,
			Exported:   d.Exported,
			Updated:    d.Updated,
			Deleted:    d.Deleted,
			Conflicted: d.Conflicted,
			Errored:    d.Errored,
		},
		Error:      d.Error,
		DurationMs: d.DurationMs,
		StartedAt:  d.StartedAt,
	}
}

// =============================================================================
// Repository Methods
// =============================================================================

// Append stores one run record.
func (a *RunLogAdapter) Append(ctx context.Context, run *domain.SyncRunLog) error {
	_, err := a.collection.InsertOne(ctx, toDocument(run))
	return err
}

// ListByConnection returns the most recent runs of a connection, newest
// first.
func (a *RunLogAdapter) ListByConnection(ctx context.Context, connectionID int64, limit int) ([]*domain.SyncRunLog, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"connection_id": connectionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []runLogDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	runs := make([]*domain.SyncRunLog, 0, len(docs))
	for i := range docs {
		runs = append(runs, docs[i].toEntity())
	}
	return runs, nil
}

// DeleteByConnection removes all run records of a connection, used when
// the connection itself is deleted.
func (a *RunLogAdapter) DeleteByConnection(ctx context.Context, connectionID int64) (int64, error) {
	result, err := a.collection.DeleteMany(ctx, bson.M{"connection_id": connectionID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
