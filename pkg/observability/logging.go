package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/intake/pkg/domain"
)

// LogHooks returns lifecycle hooks that write one structured line per event.
// Slot values are never logged.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIntentEnter: func(ctx context.Context, e *domain.IntentEvent) {
			logger.InfoContext(ctx, "intent_enter",
				"session_id", e.SessionID,
				"intent", e.Intent,
				"parent", e.Parent,
			)
		},
		OnSlotResolved: func(ctx context.Context, e *domain.SlotEvent) {
			logger.DebugContext(ctx, "slot_resolved",
				"session_id", e.SessionID,
				"intent", e.Intent,
				"slot", e.Slot,
				"source", e.Source,
			)
		},
		OnValidationFailed: func(ctx context.Context, e *domain.SlotEvent) {
			logger.InfoContext(ctx, "validation_failed",
				"session_id", e.SessionID,
				"slot", e.Slot,
				"message", e.Message,
			)
		},
		OnLookup: func(ctx context.Context, e *domain.LookupEvent) {
			attrs := []any{
				"session_id", e.SessionID,
				"slot", e.KeySlot,
				"found", e.Found,
				"duration", e.Duration,
			}
			if e.Err != nil && outcome(e) == OutcomeError {
				logger.WarnContext(ctx, "lookup", append(attrs, "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, "lookup", attrs...)
		},
	}
}
