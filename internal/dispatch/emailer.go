// internal/dispatch/emailer.go
package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
)

// SESService is the slice of the SES client the emailer needs, kept as an
// interface for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Emailer sends lifecycle emails through SES.
type Emailer struct {
	ses       SESService
	fromEmail string
	enabled   bool
	logger    logger.Logger
}

func NewEmailer(sesClient SESService, fromEmail string, enabled bool, log logger.Logger) *Emailer {
	return &Emailer{
		ses:       sesClient,
		fromEmail: fromEmail,
		enabled:   enabled,
		logger:    log.WithFields(map[string]interface{}{"component": "emailer"}),
	}
}

// Send renders the template for the notification type and mails the
// recipient. Disabled delivery and missing addresses are skipped silently.
func (e *Emailer) Send(ctx context.Context, recipient *models.Account, notificationType string, data map[string]interface{}) error {
	if !e.enabled || recipient.Email == "" {
		return nil
	}

	template, exists := templates[notificationType]
	if !exists {
		return fmt.Errorf("no template for notification type %s", notificationType)
	}

	subject := renderTemplate(template.Subject, data)
	body := renderTemplate(template.Body, data)

	_, err := e.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{recipient.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(e.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	e.logger.Info("email sent", map[string]interface{}{
		"recipientId":      recipient.ID,
		"notificationType": notificationType,
	})
	return nil
}
