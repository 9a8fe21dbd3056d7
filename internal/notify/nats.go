package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/projectkeeper/internal/models"
)

const DefaultSubject = "projectkeeper.tenant.deleted"

// Publisher is the part of *nats.Conn used for notifications.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	Servers       []string
	Name          string
	Subject       string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// ApplyDefaults fills unset fields.
func (c *NATSConfig) ApplyDefaults() {
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.Name == "" {
		c.Name = "projectkeeper"
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
}

// Connect opens a NATS connection that reconnects forever.
func Connect(cfg NATSConfig) (*nats.Conn, error) {
	cfg.ApplyDefaults()

	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}

	nc, err := nats.Connect(strings.Join(cfg.Servers, ","),
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return nc, nil
}

// NATSNotifier publishes TenantDeleted messages as JSON.
type NATSNotifier struct {
	pub     Publisher
	subject string
	now     func() time.Time
}

// NewNATSNotifier publishes on subject, DefaultSubject when empty.
func NewNATSNotifier(pub Publisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{pub: pub, subject: subject, now: time.Now}
}

func (n *NATSNotifier) Notify(ctx context.Context, summary *models.DeletionSummary) error {
	data, err := json.Marshal(TenantDeleted{Summary: summary, DeletedAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := nats.NewMsg(n.subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Tenant-Id", summary.TenantID.String())

	if err := n.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	log.Ctx(ctx).Debug().
		Str("tenant_id", summary.TenantID.String()).
		Str("subject", n.subject).
		Msg("Tenant deletion published")

	return nil
}
