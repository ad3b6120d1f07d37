package notify

import (
	"context"

	"github.com/macharian8/stocksnap/internal/domain"
)

// Sink receives sale-completed and low-stock events. Delivery is
// best-effort and never gates the sale state machine; callers log failures
// and move on.
type Sink interface {
	Publish(ctx context.Context, event domain.Event) error
}

type NoopSink struct{}

func (NoopSink) Publish(_ context.Context, _ domain.Event) error {
	return nil
}
