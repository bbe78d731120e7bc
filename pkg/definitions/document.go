package definitions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/skein-dev/skein/pkg/models"
)

// documentSchema is the JSON Schema every submitted workflow document must
// satisfy before any semantic validation runs. Condition text inside decision
// branches stays a plain string here; ParseCondition handles its grammar.
const documentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "entry_task_id", "tasks"],
	"properties": {
		"name": {"type": "string", "minLength": 3},
		"entry_task_id": {"type": "string", "minLength": 1},
		"active": {"type": "boolean"},
		"input_schema": {"type": "object"},
		"output_schema": {"type": "object"},
		"triggers": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"id": {"type": "string"},
					"type": {"type": "string", "enum": ["manual", "scheduled", "event", "webhook", "api"]},
					"configuration": {"type": "object"}
				}
			}
		},
		"tasks": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": "object",
				"required": ["name", "kind"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"kind": {"type": "string", "enum": ["action", "decision", "parallel", "wait", "human_approval", "sub_workflow"]},
					"handler": {"type": "string"},
					"config": {"type": "object"},
					"timeout": {"type": "string"},
					"next_tasks": {"type": "array", "items": {"type": "string"}},
					"conditions": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["when", "target"],
							"properties": {
								"when": {"type": "string", "minLength": 1},
								"target": {"type": "string", "minLength": 1}
							}
						}
					},
					"retry": {
						"type": "object",
						"properties": {
							"max_attempts": {"type": "integer", "minimum": 1},
							"initial_delay_ms": {"type": "integer", "minimum": 0},
							"max_delay_ms": {"type": "integer", "minimum": 0},
							"backoff_multiplier": {"type": "number", "minimum": 1},
							"retryable_errors": {"type": "array", "items": {"type": "string"}}
						}
					},
					"error_handler": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`

type taskDocument struct {
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Handler      string         `json:"handler"`
	Config       map[string]any `json:"config"`
	Timeout      string         `json:"timeout"`
	NextTasks    []string       `json:"next_tasks"`
	Conditions   []branchDoc    `json:"conditions"`
	Retry        *retryDoc      `json:"retry"`
	ErrorHandler string         `json:"error_handler"`
	Tags         []string       `json:"tags"`
}

type branchDoc struct {
	When   string `json:"when"`
	Target string `json:"target"`
}

type retryDoc struct {
	MaxAttempts       int      `json:"max_attempts"`
	InitialDelayMs    int      `json:"initial_delay_ms"`
	MaxDelayMs        int      `json:"max_delay_ms"`
	BackoffMultiplier float64  `json:"backoff_multiplier"`
	RetryableErrors   []string `json:"retryable_errors"`
}

type definitionDocument struct {
	Name         string                     `json:"name"`
	EntryTaskID  string                     `json:"entry_task_id"`
	Tasks        map[string]*taskDocument   `json:"tasks"`
	Triggers     []models.TriggerDescriptor `json:"triggers"`
	InputSchema  map[string]any             `json:"input_schema"`
	OutputSchema map[string]any             `json:"output_schema"`
	Active       bool                       `json:"active"`
}

// IngestDocument validates a raw JSON workflow document against the document
// schema, parses condition text into structured conditions and registers the
// result. Timeouts use Go duration syntax ("30s", "5m").
func (s *Store) IngestDocument(ctx context.Context, raw []byte) (*models.WorkflowDefinition, error) {
	if err := validateDocument(raw); err != nil {
		return nil, err
	}

	doc := &definitionDocument{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("failed to decode workflow document: %w", err)
	}

	def, err := doc.toDefinition()
	if err != nil {
		return nil, err
	}

	return s.Register(ctx, def)
}

func validateDocument(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to validate workflow document: %w", err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return &ValidationError{Problems: problems}
	}

	return nil
}

func (d *definitionDocument) toDefinition() (*models.WorkflowDefinition, error) {
	def := &models.WorkflowDefinition{
		Name:         d.Name,
		EntryTaskID:  d.EntryTaskID,
		Tasks:        make(map[string]*models.TaskDefinition, len(d.Tasks)),
		Triggers:     d.Triggers,
		InputSchema:  d.InputSchema,
		OutputSchema: d.OutputSchema,
		Active:       d.Active,
	}

	problems := make([]string, 0)

	for id, taskDoc := range d.Tasks {
		task, errs := taskDoc.toTask(id)
		problems = append(problems, errs...)
		def.Tasks[id] = task
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Name: d.Name, Problems: problems}
	}

	return def, nil
}

func (t *taskDocument) toTask(id string) (*models.TaskDefinition, []string) {
	problems := make([]string, 0)

	task := &models.TaskDefinition{
		ID:           id,
		Name:         t.Name,
		Kind:         models.TaskKind(t.Kind),
		Handler:      t.Handler,
		Config:       t.Config,
		NextTasks:    t.NextTasks,
		ErrorHandler: t.ErrorHandler,
		Tags:         t.Tags,
	}

	if t.Timeout != "" {
		timeout, err := time.ParseDuration(t.Timeout)
		if err != nil {
			problems = append(problems, fmt.Sprintf("task %q: invalid timeout %q", id, t.Timeout))
		} else {
			task.Timeout = timeout
		}
	}

	for _, branch := range t.Conditions {
		cond, err := models.ParseCondition(branch.When)
		if err != nil {
			problems = append(problems, fmt.Sprintf("task %q: %s", id, err.Error()))

			continue
		}

		task.Conditions = append(task.Conditions, models.ConditionBranch{
			When:   cond,
			Target: branch.Target,
		})
	}

	if t.Retry != nil {
		task.Retry = &models.RetryPolicy{
			MaxAttempts:       t.Retry.MaxAttempts,
			InitialDelay:      time.Duration(t.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:          time.Duration(t.Retry.MaxDelayMs) * time.Millisecond,
			BackoffMultiplier: t.Retry.BackoffMultiplier,
			RetryableErrors:   t.Retry.RetryableErrors,
		}
	}

	return task, problems
}
