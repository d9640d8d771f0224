// internal/dispatch/notifier.go
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"

	"agrimarket-onboarding/internal/common/logger"
	"agrimarket-onboarding/internal/models"
)

// SNSService is the slice of the SNS client the notifier needs, kept as an
// interface for mocking.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NotificationStore persists one row per delivery attempt.
type NotificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
}

// Notifier publishes push notifications to SNS and records every attempt.
type Notifier struct {
	sns            SNSService
	store          NotificationStore
	topicARNPrefix string
	enabled        bool
	logger         logger.Logger
}

func NewNotifier(snsClient SNSService, store NotificationStore, topicARNPrefix string, enabled bool, log logger.Logger) *Notifier {
	return &Notifier{
		sns:            snsClient,
		store:          store,
		topicARNPrefix: topicARNPrefix,
		enabled:        enabled,
		logger:         log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

// Push renders the template, publishes it to the per-type topic and records
// the attempt. The delivery record is written even when the publish fails so
// the trail shows both outcomes.
func (n *Notifier) Push(ctx context.Context, recipient *models.Account, recipientType, notificationType string, payload map[string]interface{}) error {
	template, exists := templates[notificationType]
	if !exists {
		return fmt.Errorf("no template for notification type %s", notificationType)
	}

	status := "disabled"
	var publishErr error
	if n.enabled {
		message := map[string]interface{}{
			"recipientId": recipient.ID,
			"type":        notificationType,
			"title":       renderTemplate(template.Subject, payload),
			"body":        renderTemplate(template.Body, payload),
			"payload":     payload,
		}
		messageJSON, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal push message: %w", err)
		}

		_, publishErr = n.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(n.topicARNPrefix + notificationType),
			Message:  aws.String(string(messageJSON)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"recipientId": {
					DataType:    aws.String("String"),
					StringValue: aws.String(recipient.ID),
				},
			},
		})
		if publishErr != nil {
			status = "failed"
		} else {
			status = "sent"
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	record := &models.Notification{
		ID:            uuid.New().String(),
		RecipientID:   recipient.ID,
		RecipientType: recipientType,
		Type:          notificationType,
		Channel:       "push",
		Status:        status,
		Payload:       payload,
		CreatedAt:     now,
	}
	// SentAt marks actual delivery, so failed and disabled attempts leave it empty.
	if status == "sent" {
		record.SentAt = now
	}
	if err := n.store.Insert(ctx, record); err != nil {
		n.logger.Warn("notification record insert failed", map[string]interface{}{
			"error":       err,
			"recipientId": recipient.ID,
		})
	}

	if publishErr != nil {
		return fmt.Errorf("publish notification: %w", publishErr)
	}
	return nil
}
