package handlers

import (
	"context"
	"log/slog"

	"github.com/skein-dev/skein/pkg/template"
)

// LogHandler writes a structured log line. The "message" config value is
// rendered against the task input; "level" selects debug, info, warn or error
// and defaults to info.
type LogHandler struct {
	logger *slog.Logger
}

func NewLogHandler(logger *slog.Logger) *LogHandler {
	return &LogHandler{logger: logger.With("module", "log_handler")}
}

func (h *LogHandler) Execute(ctx context.Context, input map[string]any, config map[string]any) (map[string]any, error) {
	message, _ := config["message"].(string)
	if message == "" {
		message = "Workflow log"
	}

	if template.Needed(message) {
		rendered, err := template.Render(message, map[string]any{"input": input})
		if err != nil {
			return nil, err
		}

		if str, ok := rendered.(string); ok {
			message = str
		}
	}

	level, _ := config["level"].(string)

	switch level {
	case "debug":
		h.logger.DebugContext(ctx, message, "input", input)
	case "warn":
		h.logger.WarnContext(ctx, message, "input", input)
	case "error":
		h.logger.ErrorContext(ctx, message, "input", input)
	default:
		h.logger.InfoContext(ctx, message, "input", input)
	}

	return map[string]any{}, nil
}
