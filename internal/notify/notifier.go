// internal/notify/notifier.go
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/crissins/admit-care/internal/common/config"
	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/models"
)

// Interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier alerts ER staff when a new admission record lands. Delivery is
// best effort: the record is already persisted when this runs, so failures
// are logged and swallowed.
type Notifier struct {
	cfg       config.NotificationConfig
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{
		cfg:    cfg,
		logger: log.With(map[string]interface{}{"component": "notify"}),
	}

	if !cfg.Email.Enabled && !cfg.SMS.Enabled {
		return n, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	n.sesClient = ses.NewFromConfig(awsCfg)
	n.snsClient = sns.NewFromConfig(awsCfg)
	return n, nil
}

// NewWithClients is used by tests to inject fakes.
func NewWithClients(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{cfg: cfg, logger: log, sesClient: sesClient, snsClient: snsClient}
}

// AdmissionStored fans the alert out to every enabled channel.
func (n *Notifier) AdmissionStored(ctx context.Context, record *models.IntakeRecord) {
	if n.cfg.Email.Enabled && n.sesClient != nil {
		if err := n.sendEmail(ctx, record); err != nil {
			n.logger.Error("admission email failed", map[string]interface{}{
				"error":        err,
				"admission_id": record.AdmissionID,
			})
		}
	}

	if n.cfg.SMS.Enabled && n.snsClient != nil {
		if err := n.sendSMS(ctx, record); err != nil {
			n.logger.Error("admission SMS failed", map[string]interface{}{
				"error":        err,
				"admission_id": record.AdmissionID,
			})
		}
	}
}

func (n *Notifier) sendEmail(ctx context.Context, record *models.IntakeRecord) error {
	subject := fmt.Sprintf("New ER admission %s", record.AdmissionID)
	body := admissionSummary(record)

	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{n.cfg.Email.ToEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, record *models.IntakeRecord) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(n.cfg.SMS.PhoneNumber),
		Message:     aws.String(admissionSummary(record)),
	})
	return err
}

func admissionSummary(record *models.IntakeRecord) string {
	return fmt.Sprintf("Admission %s: patient %s, visit type %s, arrived via %s.",
		record.AdmissionID,
		record.PII.Name,
		record.Contextual.VisitType,
		record.Contextual.ReferralSource,
	)
}
