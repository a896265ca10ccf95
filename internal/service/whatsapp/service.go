// Package whatsapp connects producers to the ledger over the WhatsApp Cloud API:
// inbound commands, and notifications when their milk or money moves.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkledger/internal/config"
	"github.com/mamadbah2/milkledger/internal/domain/models"
	"github.com/mamadbah2/milkledger/internal/service/commands"
)

// MessagingService describes the operations the HTTP layer can perform.
type MessagingService interface {
	VerifyWebhookToken(mode, verifyToken, challenge string) (string, error)
	HandleWebhook(ctx context.Context, payload models.WebhookPayload) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	cfg        config.WhatsAppConfig
	outbound   *Notifier
	dispatcher commands.Dispatcher
	logger     *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance. Replies go out through outbound.
func NewMetaWhatsAppService(cfg config.WhatsAppConfig, outbound *Notifier, dispatcher commands.Dispatcher, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		cfg:        cfg,
		outbound:   outbound,
		dispatcher: dispatcher,
		logger:     logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

var (
	replyInvalidArguments = models.AutomationReply{
		Title:   "Could not read that",
		Message: "Send deliveries as /submit <liters> <collection-point> [milk type], e.g. /submit 12.5 kindia cow.",
	}
	replyUnknown = models.AutomationReply{
		Title:   "Command Help",
		Message: commands.HelpText,
	}
)

// VerifyWebhookToken validates the callback verification token.
func (s *MetaWhatsAppService) VerifyWebhookToken(mode, verifyToken, challenge string) (string, error) {
	if mode == "" || verifyToken == "" {
		return "", errors.New("missing mode or verify token")
	}

	if !strings.EqualFold(mode, "subscribe") {
		return "", fmt.Errorf("unsupported hub.mode %s", mode)
	}

	if verifyToken != s.cfg.VerifyToken {
		return "", errors.New("invalid verify token")
	}

	return challenge, nil
}

// HandleWebhook processes inbound webhook payloads: producer commands get a
// reply, failed delivery receipts are logged.
func (s *MetaWhatsAppService) HandleWebhook(ctx context.Context, payload models.WebhookPayload) error {
	var firstErr error

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := contactNames(change.Value.Contacts)
			for _, msg := range change.Value.Messages {
				if err := s.handleInboundMessage(ctx, msg, names[msg.From]); err != nil {
					s.logger.Error("failed to handle inbound message", zap.Error(err), zap.String("message_id", msg.ID))
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			for _, status := range change.Value.Statuses {
				s.logDeliveryFailure(status)
			}
		}
	}

	return firstErr
}

func (s *MetaWhatsAppService) handleInboundMessage(ctx context.Context, msg models.InboundMessage, name string) error {
	text := extractMessageText(msg)
	if text == "" {
		s.logger.Debug("ignoring message without text", zap.String("type", msg.Type), zap.String("message_id", msg.ID))
		return nil
	}

	cmd := models.ParseCommand(text)
	s.logger.Info("parsed inbound command",
		zap.String("from", msg.From),
		zap.String("name", name),
		zap.String("command", string(cmd.Type)),
		zap.Strings("args", cmd.Args))

	reply, err := s.dispatcher.HandleCommand(ctx, cmd, msg.From)
	switch {
	case err == nil:
	case errors.Is(err, commands.ErrInvalidArguments):
		reply = formatReply(replyInvalidArguments)
	case errors.Is(err, commands.ErrUnsupportedCommand):
		reply = greeting(name) + formatReply(replyUnknown)
	default:
		s.logger.Warn("command failed", zap.String("from", msg.From), zap.Error(err))
		reply = "Could not complete the request: " + err.Error()
	}

	return s.outbound.send(ctx, msg.From, reply)
}

func (s *MetaWhatsAppService) logDeliveryFailure(status models.MessageStatus) {
	if status.Status != models.MessageStatusFailed {
		return
	}
	fields := []zap.Field{
		zap.String("message_id", status.ID),
		zap.String("recipient", status.RecipientID),
	}
	for _, e := range status.Errors {
		fields = append(fields, zap.Int("code", e.Code), zap.String("reason", e.Title))
	}
	s.logger.Warn("whatsapp notification not delivered", fields...)
}

// SendOutbound lets internal operators push quick notifications via HTTP.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	return s.outbound.SendOutbound(ctx, req)
}

func formatReply(reply models.AutomationReply) string {
	return fmt.Sprintf("%s\n%s", reply.Title, reply.Message)
}

func contactNames(contacts []models.Contact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if name := strings.TrimSpace(c.Profile.Name); name != "" {
			names[c.WaID] = name
		}
	}
	return names
}

func greeting(name string) string {
	if name == "" {
		return ""
	}
	return "Hello " + name + ",\n"
}

func extractMessageText(msg models.InboundMessage) string {
	if msg.Text != nil {
		return msg.Text.Body
	}

	if msg.Interactive != nil {
		if msg.Interactive.ButtonReply != nil {
			return msg.Interactive.ButtonReply.ID
		}
		if msg.Interactive.ListReply != nil {
			return msg.Interactive.ListReply.ID
		}
	}

	return ""
}
