package services

import (
	"context"
	"errors"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
)

// NoopEventPublisher is used when no event bus is configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, domain.LifecycleEvent) error { return nil }

type NoopSignalMetrics struct{}

func (NoopSignalMetrics) RecordRegistry(domain.RegistryStats) {}
func (NoopSignalMetrics) RecordRelay(domain.SignalKind, bool) {}
func (NoopSignalMetrics) RecordWatch(bool) {}
func (NoopSignalMetrics) RecordRosterPublish(int) {}
func (NoopSignalMetrics) RecordStoreFailure(string) {}

// MultiPublisher hands each event to every publisher in order and joins
// their errors.
type MultiPublisher []ports.EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
