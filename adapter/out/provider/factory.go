package provider

import (
	"fmt"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"golang.org/x/oauth2"
)

// Factory resolves provider adapters by provider tag. Adapters are
// stateless, so one instance per provider is shared.
type Factory struct {
	adapters map[domain.Provider]out.CalendarProviderPort
}

var _ out.ProviderFactory = (*Factory)(nil)

// NewFactory creates a factory with all supported providers registered.
func NewFactory(googleConfig *oauth2.Config) *Factory {
	return &Factory{
		adapters: map[domain.Provider]out.CalendarProviderPort{
			domain.ProviderGoogle: NewGoogleCalendarAdapter(googleConfig),
		},
	}
}

// ForProvider returns the adapter for a provider tag.
func (f *Factory) ForProvider(p domain.Provider) (out.CalendarProviderPort, error) {
	adapter, ok := f.adapters[p]
	if !ok {
		return nil, fmt.Errorf("unsupported calendar provider: %s", p)
	}
	return adapter, nil
}
