package handlers

import (
	"context"
	"fmt"
	"time"
)

// DelayHandler pauses for the "duration" config value (Go syntax). It
// observes context cancellation, so cancelled workflows do not sit out the
// full delay.
type DelayHandler struct{}

func NewDelayHandler() *DelayHandler {
	return &DelayHandler{}
}

func (h *DelayHandler) Execute(ctx context.Context, input map[string]any, config map[string]any) (map[string]any, error) {
	raw, _ := config["duration"].(string)

	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("delay handler: invalid duration %q", raw)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]any{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
