// internal/models/notification.go
package models

type Notification struct {
	ID            string                 `json:"id"`
	RecipientID   string                 `json:"recipientId"`
	RecipientType string                 `json:"recipientType"` // "applicant" or "admin"
	Type          string                 `json:"type"`          // e.g. "application_submitted", "new_application"
	Channel       string                 `json:"channel"`       // "push", "email"
	Status        string                 `json:"status"`        // "sent", "failed"
	Payload       map[string]interface{} `json:"payload,omitempty"`
	SentAt        string                 `json:"sentAt"`
	CreatedAt     string                 `json:"createdAt"`
}

type NotificationTemplate struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
