package whatsapp

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
	client "github.com/mamadbah2/milkledger/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// Notifier pushes ledger events to producers and the cooperative manager.
type Notifier struct {
	client       client.Client
	managerPhone string
	logger       *zap.Logger
}

// NewNotifier builds a notifier. An empty managerPhone silences manager alerts.
func NewNotifier(client client.Client, managerPhone string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{client: client, managerPhone: managerPhone, logger: logger}
}

// SendOutbound sends one text message.
func (n *Notifier) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := n.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:         req.To,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrDeliveryFailed, err)
	}
	n.logger.Debug("message sent", zap.String("to", req.To))
	return nil
}

// NotifySubmissionResolved tells the producer how the collector resolved a delivery.
func (n *Notifier) NotifySubmissionResolved(ctx context.Context, submission models.Submission) error {
	var body string
	switch submission.Status {
	case models.StatusAccepted:
		body = fmt.Sprintf("Your %sL delivery of %s was accepted: %sL credited.",
			submission.DeclaredAmount.String(), submission.SubmittedAt.Format("2006-01-02"), submission.ActualAmount.String())
		if submission.FlaggedForReview {
			body += " The measured amount differs from what you declared and will be reviewed."
		}
	case models.StatusRejected:
		body = fmt.Sprintf("Your %sL delivery of %s was rejected.", submission.DeclaredAmount.String(), submission.SubmittedAt.Format("2006-01-02"))
	default:
		return nil
	}
	if submission.QualityNote != "" {
		body += " Note: " + submission.QualityNote
	}
	return n.send(ctx, submission.ProducerID, body)
}

// NotifyPaymentRecorded confirms a payout to its producer.
func (n *Notifier) NotifyPaymentRecorded(ctx context.Context, payment models.Payment) error {
	body := fmt.Sprintf("Payment of %s recorded for deliveries from %s to %s.",
		payment.Amount.StringFixed(0), payment.PeriodStart.Format("2006-01-02"), payment.PeriodEnd.Format("2006-01-02"))
	return n.send(ctx, payment.ProducerID, body)
}

// NotifyPaymentDue tells a producer their payout is due and copies the manager.
func (n *Notifier) NotifyPaymentDue(ctx context.Context, balance models.PayableBalance) error {
	outstanding := balance.Outstanding.StringFixed(0)
	if err := n.send(ctx, balance.ProducerID, fmt.Sprintf("Your payment of %s is due. The cooperative will settle it shortly.", outstanding)); err != nil {
		return err
	}
	if n.managerPhone == "" {
		return nil
	}
	return n.send(ctx, n.managerPhone, fmt.Sprintf("Producer %s is due for payment: outstanding %s.", balance.ProducerID, outstanding))
}

func (n *Notifier) send(ctx context.Context, to, body string) error {
	return n.SendOutbound(ctx, models.OutboundMessageRequest{To: to, Message: body})
}
