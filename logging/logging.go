package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
)

// PrettyJSONHandler is a custom handler that pretty prints JSON in development
type PrettyJSONHandler struct {
	*slog.JSONHandler
	writer io.Writer
}

func (h *PrettyJSONHandler) Handle(ctx context.Context, r slog.Record) error {
	// Convert the record to a map
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	// Add time and level
	attrs["time"] = r.Time.Format(time.RFC3339)
	attrs["level"] = r.Level.String()
	attrs["msg"] = r.Message

	// Marshal with indentation
	prettyJSON, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return err
	}

	// Write to the handler's writer with newline
	_, err = h.writer.Write(append(prettyJSON, '\n'))
	return err
}

// NewPrettyJSONHandler creates a new pretty JSON handler
func newPrettyJSONHandler() *PrettyJSONHandler {
	return &PrettyJSONHandler{
		JSONHandler: slog.NewJSONHandler(os.Stdout, nil),
		writer:      os.Stdout,
	}
}

var ProdLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

var DevLogger = slog.New(newPrettyJSONHandler())

// WithTrace stamps ctx with a fresh trace id. Call it once at the top of a
// request or job; every query logged under that ctx carries the same id, so
// the queries of one logical operation group together in log search.
//
// UUIDv7 ids sort by creation time, which keeps trace ids grep-able in
// chronological order.
func WithTrace(ctx context.Context) context.Context {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does. Fall back to v4
		// semantics via NewString, which panics in the same situation.
		return context.WithValue(ctx, traceIDKey, uuid.NewString())
	}
	return context.WithValue(ctx, traceIDKey, id.String())
}

// TraceID returns the trace id stamped by WithTrace, or "" when ctx has
// none.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
