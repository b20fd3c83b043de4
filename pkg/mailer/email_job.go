package mailer

// EmailJob is the JSON payload handed to a Transport.
// Template plus Data is rendered on the sending side; Subject, Text and
// HTML are sent as-is when Template is empty.
type EmailJob struct {
	ID       string         `json:"id,omitempty"`
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // "universal"
	Data     map[string]any `json:"data,omitempty"`
}
