package services

import (
	"context"
	"fmt"
	"time"

	"event-portal/models"

	pubnub "github.com/pubnub/go/v7"
	"go.uber.org/zap"
)

// Publisher sends one message to a realtime channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// PubNubPublisher publishes through a PubNub keyset.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(cfg PubNubConfig) *PubNubPublisher {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey

	return &PubNubPublisher{pn: pubnub.NewPubNub(pnCfg)}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, message any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, st, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish: %w", err)
	}
	if st.Error != nil {
		return fmt.Errorf("pubnub publish: status %d: %w", st.StatusCode, st.Error)
	}
	return nil
}

func (p *PubNubPublisher) Close() {
	p.pn.Destroy()
}

func userChannel(subject string) string {
	return "user-" + subject
}

// Notifier pushes settled payment outcomes to the user's channel so other
// open views can refresh. A nil *Notifier drops everything.
type Notifier struct {
	pub    Publisher
	logger *zap.Logger
}

func NewNotifier(pub Publisher, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, logger: logger}
}

func (n *Notifier) PaymentOutcome(ctx context.Context, subject, orderID string, outcome models.Outcome) {
	if n == nil || n.pub == nil {
		return
	}

	msg := models.PaymentNotification{
		Type:      "payment_outcome",
		OrderID:   orderID,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
	}
	if err := n.pub.Publish(ctx, userChannel(subject), msg); err != nil {
		n.logger.Warn("payment outcome not published",
			zap.String("order_id", orderID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}
