package ingest

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/polypnl/internal/domain"
)

// EventSink receives raw event pages for durable mirroring.
type EventSink interface {
	InsertBatch(ctx context.Context, events []domain.RawWalletEvent) error
}

// TeeSource wraps a raw event source and mirrors every fetched page into a
// sink. Mirroring is best effort: a sink failure is logged and the fetched
// events are still returned, so the computation never depends on the mirror
// being writable.
type TeeSource struct {
	source domain.RawEventSource
	sink   EventSink
	logger *slog.Logger
}

// NewTeeSource creates a TeeSource mirroring source reads into sink.
func NewTeeSource(source domain.RawEventSource, sink EventSink, logger *slog.Logger) *TeeSource {
	return &TeeSource{source: source, sink: sink, logger: logger}
}

// RawEventsByWallet implements domain.RawEventSource.
func (t *TeeSource) RawEventsByWallet(ctx context.Context, wallet string) ([]domain.RawWalletEvent, error) {
	events, err := t.source.RawEventsByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if t.sink != nil && len(events) > 0 {
		if sinkErr := t.sink.InsertBatch(ctx, events); sinkErr != nil {
			t.logger.Warn("ingest: event mirror write failed",
				slog.String("wallet", wallet),
				slog.Int("events", len(events)),
				slog.String("error", sinkErr.Error()),
			)
		}
	}

	return events, nil
}

// Compile-time interface check.
var _ domain.RawEventSource = (*TeeSource)(nil)
