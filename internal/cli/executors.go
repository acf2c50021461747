package cli

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MalakaSupun/startmate/internal/orchestrator"
	"github.com/MalakaSupun/startmate/internal/plan"
)

// stubExecutors builds a logging stand-in for every executor capability
// the plan names. Real deployments wire mail/chat/calendar clients here;
// the stubs log what they would do and return a fresh result token, which
// is enough to exercise the full state machine end to end.
func stubExecutors(p *plan.Plan) orchestrator.ExecutorSet {
	set := make(orchestrator.ExecutorSet)
	for _, name := range p.ExecutorNames() {
		capability := name
		set[capability] = orchestrator.ExecutorFunc(func(ctx context.Context, hireID string, attrs map[string]string) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			token := "stub-" + uuid.Must(uuid.NewV7()).String()
			slog.Info("stub executor invoked",
				"capability", capability,
				"hire_id", hireID,
				"result_token", token,
			)
			return token, nil
		})
	}
	return set
}
