// Package notify delivers reset and verification tokens to account holders.
//
// authd never talks SMTP. The MQTT notifier publishes a message on the
// email hand-off topic and a separate mailer service owns delivery. When
// the broker is disabled, the log notifier records the hand-off instead
// so development setups still work end to end.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finchsec/authd/internal/infrastructure/logging"
	"github.com/finchsec/authd/internal/infrastructure/mqtt"
)

// Templates understood by the downstream mailer.
const (
	TemplatePasswordReset     = "password_reset"
	TemplateEmailVerification = "email_verification"
)

// emailMessage is the payload published on the email hand-off topic.
//
// The token field carries a live credential; broker ACLs must restrict
// the notify topic to authd and the mailer.
type emailMessage struct {
	To        string    `json:"to"`
	Template  string    `json:"template"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MQTTNotifier hands token emails to the mailer over the message bus.
type MQTTNotifier struct {
	client *mqtt.Client
	topics mqtt.Topics
}

// NewMQTTNotifier creates a notifier publishing on the given client.
func NewMQTTNotifier(client *mqtt.Client) *MQTTNotifier {
	return &MQTTNotifier{client: client}
}

// SendPasswordReset publishes a password reset hand-off.
func (n *MQTTNotifier) SendPasswordReset(_ context.Context, email, token string, expiresAt time.Time) error {
	return n.publish(emailMessage{
		To:        email,
		Template:  TemplatePasswordReset,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// SendEmailVerification publishes an address verification hand-off.
func (n *MQTTNotifier) SendEmailVerification(_ context.Context, email, token string, expiresAt time.Time) error {
	return n.publish(emailMessage{
		To:        email,
		Template:  TemplateEmailVerification,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (n *MQTTNotifier) publish(msg emailMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode email hand-off: %w", err)
	}

	if err := n.client.PublishJSON(n.topics.NotifyEmail(), payload); err != nil {
		return fmt.Errorf("publish email hand-off: %w", err)
	}

	return nil
}

// LogNotifier records token hand-offs in the service log.
//
// Used when MQTT is disabled. The token itself is not logged; only its
// destination and expiry.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendPasswordReset logs the reset hand-off.
func (n *LogNotifier) SendPasswordReset(_ context.Context, email, _ string, expiresAt time.Time) error {
	n.logger.Info("password reset issued",
		"email", email,
		"expires_at", expiresAt)
	return nil
}

// SendEmailVerification logs the verification hand-off.
func (n *LogNotifier) SendEmailVerification(_ context.Context, email, _ string, expiresAt time.Time) error {
	n.logger.Info("email verification issued",
		"email", email,
		"expires_at", expiresAt)
	return nil
}
