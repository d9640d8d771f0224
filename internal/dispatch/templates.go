// internal/dispatch/templates.go
package dispatch

import (
	"fmt"
	"strings"
)

// Notification types emitted by the dispatcher.
const (
	TypeApplicationSubmitted   = "application_submitted"
	TypeApplicationApproved    = "application_approved"
	TypeApplicationRejected    = "application_rejected"
	TypeApplicationUnderReview = "application_under_review"
	TypeApplicationSuspended   = "application_suspended"
	TypeNewApplication         = "new_application"
)

type messageTemplate struct {
	Subject string
	Body    string
}

var templates = map[string]messageTemplate{
	TypeApplicationSubmitted: {
		Subject: "Application Submitted Successfully",
		Body:    "Hello {{recipientName}}, your {{applicationType}} application has been received and is awaiting review.",
	},
	TypeApplicationApproved: {
		Subject: "Application Approved",
		Body:    "Congratulations {{recipientName}}! Your {{applicationType}} application has been approved. Welcome aboard.",
	},
	TypeApplicationUnderReview: {
		Subject: "Application Under Review",
		Body:    "Hello {{recipientName}}, your {{applicationType}} application is now being reviewed by our team.",
	},
	TypeApplicationRejected: {
		Subject: "Application Update",
		Body:    "Hello {{recipientName}}, your {{applicationType}} application was not approved. Reason: {{rejectionReason}}. You may update your details and apply again.",
	},
	TypeApplicationSuspended: {
		Subject: "Account Suspended",
		Body:    "Hello {{recipientName}}, your {{applicationType}} account has been suspended. Reason: {{suspensionReason}}. Contact support for assistance.",
	},
	TypeNewApplication: {
		Subject: "New Application Awaiting Review",
		Body:    "A new {{applicationType}} application (v{{version}}) from {{applicantName}} is waiting in the review queue.",
	},
}

// renderTemplate substitutes {{key}} placeholders from data and strips any
// placeholder that has no value.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
