// Package notify publishes customer notifications to the notification
// service over Redis. Delivery is fire-and-forget.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notification types understood by the notification service
const (
	TypeResourcesActivated  = "resources.activated"
	TypeRenewalSucceeded    = "subscription.renewed"
	TypeRenewalFailed       = "subscription.renewal_failed"
	TypeSubscriptionPastDue = "subscription.past_due"
	TypeDomainConnected     = "domain.connected"
)

// Notification is the JSON message published on the channel
type Notification struct {
	Type      string                 `json:"type"`
	OwnerID   string                 `json:"owner_id"`
	PaymentID string                 `json:"payment_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	SentAt    time.Time              `json:"sent_at"`
}

// Publisher is the subset of messaging.RedisClient used here
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Notifier sends notifications without blocking the caller
type Notifier struct {
	publisher Publisher
	channel   string
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewNotifier creates a notifier publishing on channel
func NewNotifier(publisher Publisher, channel string, logger *zap.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		channel:   channel,
		timeout:   3 * time.Second,
		logger:    logger,
	}
}

// Notify publishes n in the background. Failures are logged and dropped.
func (n *Notifier) Notify(_ context.Context, msg Notification) {
	if n == nil || n.publisher == nil {
		return
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		// detached from the request context so a finished request does not cancel delivery
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.publisher.Publish(ctx, n.channel, msg); err != nil {
			n.logger.Warn("Failed to publish notification",
				zap.String("type", msg.Type),
				zap.String("owner_id", msg.OwnerID),
				zap.String("payment_id", msg.PaymentID),
				zap.Error(err))
			return
		}
		n.logger.Debug("Notification published",
			zap.String("type", msg.Type),
			zap.String("owner_id", msg.OwnerID))
	}()
}

// Wait blocks until in-flight notifications finish. Used on shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
