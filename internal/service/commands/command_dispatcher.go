// Package commands turns producer WhatsApp commands into ledger operations.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/domain/models"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

const (
	dateFormat      = "2006-01-02"
	defaultMilkType = "cow"
)

// SubmissionLedger records producer deliveries.
type SubmissionLedger interface {
	Submit(ctx context.Context, producerID, collectionPointID, milkType string, amount decimal.Decimal) (models.Submission, error)
}

// PaymentScheduler answers balance and payment-cycle questions.
type PaymentScheduler interface {
	ComputeBalance(ctx context.Context, producerID string) (models.PayableBalance, error)
	IsPaymentDue(ctx context.Context, producerID string) (bool, error)
}

// SessionStore remembers per-producer defaults between commands.
type SessionStore interface {
	Last(producerID string) (models.ProducerSession, bool)
	Remember(producerID string, session models.ProducerSession)
}

// Dispatcher executes parsed commands on behalf of a sender.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements Dispatcher. The sender's WhatsApp id is the producer id.
type Service struct {
	submissions SubmissionLedger
	payments    PaymentScheduler
	sessions    SessionStore
	cycleDays   int
	logger      *zap.Logger
	now         func() time.Time
}

// NewService constructs a command dispatcher. sessions may be nil.
func NewService(submissions SubmissionLedger, payments PaymentScheduler, sessions SessionStore, cycleDays int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		submissions: submissions,
		payments:    payments,
		sessions:    sessions,
		cycleDays:   cycleDays,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleCommand runs cmd and returns the reply text.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case models.CommandSubmit:
		return s.submit(ctx, cmd, sender)
	case models.CommandBalance:
		balance, err := s.payments.ComputeBalance(ctx, sender)
		if err != nil {
			return "", err
		}
		return formatBalance(balance), nil
	case models.CommandDue:
		due, err := s.payments.IsPaymentDue(ctx, sender)
		if err != nil {
			return "", err
		}
		if due {
			return "Your payment is due. The cooperative will settle it shortly.", nil
		}
		return fmt.Sprintf("No payment due yet. Payments open %d days after your last accepted delivery.", s.cycleDays), nil
	case models.CommandHelp:
		return HelpText, nil
	default:
		return "", ErrUnsupportedCommand
	}
}

// HelpText lists the supported commands.
const HelpText = "Commands:\n" +
	"/submit <liters> <collection-point> [milk type] records a delivery\n" +
	"/balance shows what the cooperative owes you\n" +
	"/due tells you whether a payment is due"

func (s *Service) submit(ctx context.Context, cmd models.Command, sender string) (string, error) {
	if len(cmd.Args) == 0 {
		return "", ErrInvalidArguments
	}

	amount, err := decimal.NewFromString(strings.TrimSuffix(strings.ToLower(cmd.Args[0]), "l"))
	if err != nil || !amount.IsPositive() {
		return "", ErrInvalidArguments
	}

	var session models.ProducerSession
	if s.sessions != nil {
		session, _ = s.sessions.Last(sender)
	}
	if len(cmd.Args) > 1 {
		session.CollectionPointID = cmd.Args[1]
	}
	if len(cmd.Args) > 2 {
		session.MilkType = strings.Join(cmd.Args[2:], " ")
	}
	if session.CollectionPointID == "" {
		return "", ErrInvalidArguments
	}
	if session.MilkType == "" {
		session.MilkType = defaultMilkType
	}

	submission, err := s.submissions.Submit(ctx, sender, session.CollectionPointID, session.MilkType, amount)
	if err != nil {
		return "", err
	}

	if s.sessions != nil {
		session.UpdatedAt = s.now().UTC()
		s.sessions.Remember(sender, session)
	}

	return fmt.Sprintf("Delivery recorded on %s: %sL of %s milk at %s. Reference %s, awaiting collector check.",
		submission.SubmittedAt.Format(dateFormat), submission.DeclaredAmount.String(), submission.MilkType,
		submission.CollectionPointID, shortID(submission.ID)), nil
}

func formatBalance(balance models.PayableBalance) string {
	message := fmt.Sprintf("Accepted milk: %sL at %s per liter = %s.\nApproved advances: %s.\nPaid: %s.\nOutstanding: %s.",
		balance.AcceptedAmount.String(), balance.UnitPrice.String(), balance.Gross.StringFixed(0),
		balance.Advances.StringFixed(0), balance.Paid.StringFixed(0), balance.Outstanding.StringFixed(0))
	if balance.LastAcceptedAt != nil {
		message += fmt.Sprintf("\nLast accepted delivery: %s.", balance.LastAcceptedAt.Format(dateFormat))
	}
	return message
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
