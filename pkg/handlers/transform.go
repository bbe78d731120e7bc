package handlers

import (
	"context"
	"fmt"

	"github.com/skein-dev/skein/pkg/template"
)

// TransformHandler renders the "expression" config template against the task
// input and returns the result as output. An expression that renders to a
// JSON object becomes the output map directly; any other value is stored
// under the "target" config key (default "result").
type TransformHandler struct{}

func NewTransformHandler() *TransformHandler {
	return &TransformHandler{}
}

func (h *TransformHandler) Execute(_ context.Context, input map[string]any, config map[string]any) (map[string]any, error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("transform handler requires an 'expression' config value")
	}

	result, err := template.Render(expression, map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	if object, ok := result.(map[string]any); ok {
		return object, nil
	}

	target, _ := config["target"].(string)
	if target == "" {
		target = "result"
	}

	return map[string]any{target: result}, nil
}
