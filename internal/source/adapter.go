// Package source adapts external tabular feeds of new-hire records into
// validated onboarding events.
//
// Adapters are lazy and restartable: each Poll re-reads the feed and
// surfaces whatever qualifies right now. Duplicate suppression within one
// poll is a convenience only; the orchestrator's idempotency holds with or
// without it.
package source

import (
	"context"

	"github.com/MalakaSupun/startmate/internal/hire"
)

// Adapter produces the events of one poll cycle.
type Adapter interface {
	Poll(ctx context.Context) ([]hire.Event, error)
}
