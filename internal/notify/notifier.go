package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"messaging-service/internal/models"
)

// RoutingKey is where email notifications are published for the mailer.
const RoutingKey = "notifications.email"

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// EmailNotification is the data the mailer needs; delivery is not our concern.
type EmailNotification struct {
	To         string `json:"to"`
	Name       string `json:"name,omitempty"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ChatID     string `json:"chat_id"`
	TransferID string `json:"transfer_id,omitempty"`
}

// EmailNotifier publishes one notification per recipient on the AMQP exchange.
type EmailNotifier struct {
	publisher Publisher
	log       logrus.FieldLogger
}

func NewEmailNotifier(publisher Publisher, log logrus.FieldLogger) *EmailNotifier {
	return &EmailNotifier{publisher: publisher, log: log}
}

// ChatCreated announces a new chat to its receivers.
func (n *EmailNotifier) ChatCreated(ctx context.Context, chat models.Chat, sender models.User, receivers []models.User) {
	subject := chat.Subject
	if strings.TrimSpace(subject) == "" {
		subject = "New message"
	}
	for _, receiver := range receivers {
		n.publish(ctx, EmailNotification{
			To:      receiver.Email,
			Name:    receiver.Name,
			Subject: fmt.Sprintf("%s sent you a message: %s", displayName(sender), subject),
			Body:    chat.Content,
			ChatID:  chat.ID,
		})
	}
}

// ChatTransferred announces a forwarded chat to the transfer's receivers.
func (n *EmailNotifier) ChatTransferred(ctx context.Context, transfer models.ChatTransfer, chat models.Chat, forwarder models.User, receivers []models.User) {
	for _, receiver := range receivers {
		n.publish(ctx, EmailNotification{
			To:         receiver.Email,
			Name:       receiver.Name,
			Subject:    fmt.Sprintf("%s forwarded you a message: %s", displayName(forwarder), chat.Subject),
			Body:       chat.Content,
			ChatID:     chat.ID,
			TransferID: transfer.ID,
		})
	}
}

func (n *EmailNotifier) publish(ctx context.Context, msg EmailNotification) {
	if n == nil || n.publisher == nil || msg.To == "" {
		return
	}
	if err := n.publisher.Publish(ctx, RoutingKey, msg); err != nil {
		n.log.WithError(err).WithFields(logrus.Fields{
			"chat_id": msg.ChatID,
			"to":      msg.To,
		}).Warn("email notification publish failed")
	}
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
