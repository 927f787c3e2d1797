package triage

// Result is the structured outcome of analyzing one email. Produced fresh per
// message, never mutated afterwards. Empty strings stand in for the provider's
// JSON nulls.
type Result struct {
	Category     string `json:"category"`
	IsActionable bool   `json:"is_actionable"`
	TaskTitle    string `json:"task_title"`
	DueDate      string `json:"due_date"`
	Summary      string `json:"summary"`
}

// ImageInput is an image attachment handed to the vision stage. Data is the
// base64 payload exactly as the mail provider returned it.
type ImageInput struct {
	Name        string
	ContentType string
	Data        string
}
