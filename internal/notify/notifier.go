// Package notify delivers terminal-decision notifications to the operations
// channel via SES email and SNS SMS. Delivery is best effort and never
// affects the workflow result.
package notify

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"loanflow/internal/common/aws"
	"loanflow/internal/common/config"
	"loanflow/internal/common/logger"
	"loanflow/internal/models"
)

type Notifier struct {
	ses    *aws.SESClient
	sns    *aws.SNSClient
	cfg    config.NotificationConfig
	logger logger.Logger
}

func New(sesClient *aws.SESClient, snsClient *aws.SNSClient, cfg config.NotificationConfig, log logger.Logger) *Notifier {
	return &Notifier{
		ses:    sesClient,
		sns:    snsClient,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// DecisionIssued notifies operations of a terminal decision. Manual reviews
// additionally page via SMS when enabled.
func (n *Notifier) DecisionIssued(ctx context.Context, d *models.Decision) {
	if n.cfg.Email.Enabled && n.ses != nil {
		if err := n.sendEmail(ctx, d); err != nil {
			n.logger.Warn("decision email failed", map[string]interface{}{
				"correlationId": d.CorrelationID,
				"error":         err,
			})
		}
	}
	if n.cfg.SMS.Enabled && n.sns != nil && d.Outcome == models.OutcomeManualReview {
		if err := n.sendSMS(ctx, d); err != nil {
			n.logger.Warn("decision SMS failed", map[string]interface{}{
				"correlationId": d.CorrelationID,
				"error":         err,
			})
		}
	}
}

func (n *Notifier) sendEmail(ctx context.Context, d *models.Decision) error {
	subject := fmt.Sprintf("Loan decision %s: %s", d.CorrelationID, d.Outcome)
	body := fmt.Sprintf("Outcome: %s\nElapsed: %s\n\n%s", d.Outcome, d.Elapsed, d.Rationale)

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: awssdk.String(n.cfg.Email.FromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{n.cfg.Email.OpsEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(body)},
			},
		},
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, d *models.Decision) error {
	message := fmt.Sprintf("Loan application escalated to manual review (correlation %s)", d.CorrelationID)
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber: awssdk.String(n.cfg.SMS.OpsNumber),
		Message:     awssdk.String(message),
	})
	return err
}
