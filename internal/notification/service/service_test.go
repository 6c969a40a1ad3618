package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/sponsornet/internal/notification/domain"
	obscontext "github.com/smallbiznis/sponsornet/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu        sync.Mutex
	failures  int
	published []amqp.Publishing
	closed    bool
}

func (p *fakePublisher) Publish(_ context.Context, queue string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("channel closed")
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID snowflake.ID, title, message, notificationType string) error {
	args := m.Called(ctx, userID, title, message, notificationType)
	return args.Error(0)
}

func (m *mockNotifier) AlertAdmins(ctx context.Context, title, message string) error {
	args := m.Called(ctx, title, message)
	return args.Error(0)
}

func testConfig(retries int) AMQPConfig {
	return AMQPConfig{Queue: "test.notifications", MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestAMQPNotifierPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	notifier := newAMQPNotifier(testConfig(0), zap.NewNop(), func() (publisher, error) { return pub, nil })

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	require.NoError(t, notifier.Notify(ctx, snowflake.ID(42), "Commission", "You earned 35000.00", domain.TypeCommission))

	require.Len(t, pub.published, 1)
	msg := pub.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(msg.Body, &env))
	assert.Equal(t, "42", env.UserID)
	assert.Equal(t, "user", env.Audience)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, msg.MessageId, env.ID)
	assert.Len(t, env.ID, 26)
}

func TestAMQPNotifierReconnectsAndRetries(t *testing.T) {
	broken := &fakePublisher{failures: 1}
	healthy := &fakePublisher{}
	opened := 0
	notifier := newAMQPNotifier(testConfig(2), zap.NewNop(), func() (publisher, error) {
		opened++
		if opened == 1 {
			return broken, nil
		}
		return healthy, nil
	})

	require.NoError(t, notifier.AlertAdmins(context.Background(), "Commission paid", "35000.00"))
	assert.Equal(t, 2, opened)
	assert.True(t, broken.closed)
	require.Len(t, healthy.published, 1)
}

func TestAMQPNotifierGivesUpAfterRetries(t *testing.T) {
	pub := &fakePublisher{failures: 10}
	notifier := newAMQPNotifier(testConfig(1), zap.NewNop(), func() (publisher, error) { return pub, nil })

	err := notifier.Notify(context.Background(), 1, "t", "m", domain.TypePayment)
	assert.Error(t, err)
	assert.Equal(t, 8, pub.failures)
}

func TestDispatcherRoutesAndSwallowsErrors(t *testing.T) {
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, snowflake.ID(7), "Commission", "paid", domain.TypeCommission).Return(errors.New("broker down")).Once()
	notifier.On("AlertAdmins", mock.Anything, "Commission", "paid to 7").Return(nil).Once()

	dispatcher := NewDispatcher(notifier, zap.NewNop())
	dispatcher.Dispatch(context.Background(),
		domain.Message{UserID: 7, Title: "Commission", Body: "paid", Type: domain.TypeCommission},
		domain.Message{Title: "Commission", Body: "paid to 7", Type: domain.TypeAdminAlert},
	)
	notifier.AssertExpectations(t)

	var nilDispatcher *Dispatcher
	assert.NotPanics(t, func() { nilDispatcher.Dispatch(context.Background(), domain.Message{}) })
}
