package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/sponsornet/internal/notification/domain"
	obscontext "github.com/smallbiznis/sponsornet/internal/observability/context"
	"go.uber.org/zap"
)

const (
	audienceUser  = "user"
	audienceAdmin = "admin"
)

type AMQPConfig struct {
	URL        string
	Queue      string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// publisher is the slice of an AMQP channel the notifier needs.
type publisher interface {
	Publish(ctx context.Context, queue string, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notification envelopes to a durable queue. The
// connection is opened lazily and replaced after a failed publish.
type AMQPNotifier struct {
	cfg   AMQPConfig
	log   *zap.Logger
	retry retrypolicy.RetryPolicy[any]
	open  func() (publisher, error)

	mu  sync.Mutex
	pub publisher
}

func NewAMQPNotifier(cfg AMQPConfig, log *zap.Logger) *AMQPNotifier {
	return newAMQPNotifier(cfg, log, func() (publisher, error) {
		return dialPublisher(cfg.URL, cfg.Queue)
	})
}

func newAMQPNotifier(cfg AMQPConfig, log *zap.Logger, open func() (publisher, error)) *AMQPNotifier {
	if cfg.Queue == "" {
		cfg.Queue = "sponsornet.notifications"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 5 * cfg.BaseDelay
	}
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ any, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		Build()

	return &AMQPNotifier{
		cfg:   cfg,
		log:   log.Named("notification.amqp"),
		retry: retry,
		open:  open,
	}
}

func (n *AMQPNotifier) Notify(ctx context.Context, userID snowflake.ID, title, message, notificationType string) error {
	return n.publish(ctx, domain.Envelope{
		UserID:   userID.String(),
		Audience: audienceUser,
		Title:    title,
		Message:  message,
		Type:     notificationType,
	})
}

func (n *AMQPNotifier) AlertAdmins(ctx context.Context, title, message string) error {
	return n.publish(ctx, domain.Envelope{
		Audience: audienceAdmin,
		Title:    title,
		Message:  message,
		Type:     domain.TypeAdminAlert,
	})
}

func (n *AMQPNotifier) publish(ctx context.Context, env domain.Envelope) error {
	env.ID = ulid.Make().String()
	env.RequestID = obscontext.RequestIDFromContext(ctx)
	env.OccurredAt = time.Now().UTC()

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.OccurredAt,
		Type:         env.Type,
		Body:         body,
	}

	return failsafe.With(n.retry).WithContext(ctx).Run(func() error {
		pub, err := n.current()
		if err != nil {
			return err
		}
		if err := pub.Publish(ctx, n.cfg.Queue, msg); err != nil {
			n.log.Warn("notification publish failed", zap.String("message_id", env.ID), zap.Error(err))
			n.reset(pub)
			return err
		}
		return nil
	})
}

func (n *AMQPNotifier) current() (publisher, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pub != nil {
		return n.pub, nil
	}
	pub, err := n.open()
	if err != nil {
		return nil, err
	}
	n.pub = pub
	return pub, nil
}

func (n *AMQPNotifier) reset(failed publisher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pub != failed {
		return
	}
	_ = n.pub.Close()
	n.pub = nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pub == nil {
		return nil
	}
	err := n.pub.Close()
	n.pub = nil
	return err
}

type amqpPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialPublisher(url, queue string) (publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &amqpPublisher{conn: conn, ch: ch}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, "", queue, false, false, msg)
}

func (p *amqpPublisher) Close() error {
	chErr := p.ch.Close()
	connErr := p.conn.Close()
	return errors.Join(chErr, connErr)
}
