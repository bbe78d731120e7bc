// Package template renders handler configuration values against task input,
// so workflow documents can reference runtime data without custom handler
// code.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Needed reports whether a string contains template syntax worth rendering.
func Needed(input string) bool {
	return strings.Contains(input, "{{")
}

// Render parses and executes a Go text template against data. The rendered
// string is coerced: JSON objects and arrays decode to maps/slices, numeric
// and boolean text to their typed values, everything else stays a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return coerce(strings.TrimSpace(buf.String()))
}

// RenderConfig renders every string value of a handler config against the
// task's input. Template data exposes "input" (the context snapshot) and
// "env" (process environment). Non-string values pass through untouched.
func RenderConfig(config, input map[string]any) (map[string]any, error) {
	data := map[string]any{
		"input": input,
		"env":   envVars(),
	}

	out := make(map[string]any, len(config))

	for key, value := range config {
		str, ok := value.(string)
		if !ok || !Needed(str) {
			out[key] = value

			continue
		}

		rendered, err := Render(str, data)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}

func coerce(result string) (any, error) {
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(result), &decoded); err != nil {
			return nil, fmt.Errorf("failed to parse rendered json '%s': %w", result, err)
		}

		return decoded, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
