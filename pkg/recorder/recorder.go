package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// Event is one usage record emitted per evaluation. The context carried
// here is sanitized down to identifiers safe to persist; the raw caller
// context never leaves the evaluation path.
type Event struct {
	FlagID    string            `json:"flag_id"`
	AppID     string            `json:"app_id"`
	Enabled   bool              `json:"enabled"`
	Reason    evaluation.Reason `json:"reason"`
	Context   map[string]any    `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// sanitizedKeys are the only context attributes that survive into a usage
// record.
var sanitizedKeys = []string{"user_id", "session_id"}

// NewEvent builds a usage record from an evaluation outcome, sanitizing the
// context.
func NewEvent(appID string, res evaluation.Result, evalCtx evaluation.Context) Event {
	var sanitized map[string]any
	for _, key := range sanitizedKeys {
		if v, ok := evalCtx[key]; ok {
			if sanitized == nil {
				sanitized = make(map[string]any, len(sanitizedKeys))
			}
			sanitized[key] = v
		}
	}
	return Event{
		FlagID:    res.FlagID,
		AppID:     appID,
		Enabled:   res.Enabled,
		Reason:    res.Reason,
		Context:   sanitized,
		Timestamp: time.Now().UTC(),
	}
}

// Recorder consumes usage records. Implementations must be fire-and-forget:
// Record must not block the evaluation path and must swallow delivery
// failures — losing a usage record is always preferable to failing or
// slowing an evaluation.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Record(context.Context, Event) {}

// LogRecorder emits each usage record as a structured log line, the
// simplest sink that still feeds log-based analytics pipelines.
type LogRecorder struct {
	log *slog.Logger
}

// NewLogRecorder creates a recorder writing to the given logger.
func NewLogRecorder(log *slog.Logger) *LogRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(ctx context.Context, event Event) {
	r.log.InfoContext(ctx, "flag evaluated",
		slog.String("flag_id", event.FlagID),
		slog.String("app_id", event.AppID),
		slog.Bool("enabled", event.Enabled),
		slog.String("reason", string(event.Reason)),
		slog.Any("context", event.Context),
		slog.Time("timestamp", event.Timestamp))
}
