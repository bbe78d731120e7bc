package web

// StartInstanceRequest is the body of POST /definitions/:id/start.
type StartInstanceRequest struct {
	Input       map[string]any `json:"input"`
	TriggeredBy string         `json:"triggered_by" validate:"omitempty,max=256"`
}
