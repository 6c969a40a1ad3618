package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sponsornet/internal/clock"
	"github.com/smallbiznis/sponsornet/internal/config"
	"github.com/smallbiznis/sponsornet/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sponsornet/internal/observability/metrics"
	"github.com/smallbiznis/sponsornet/internal/payment/adapters"
	"github.com/smallbiznis/sponsornet/internal/payment/adapters/flutterwave"
	"github.com/smallbiznis/sponsornet/internal/payment/adapters/mobilemoney"
	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	PaymentSvc paymentdomain.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	paymentSvc paymentdomain.Service
	adapters   *adapters.Registry
	secrets    map[string]string
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		secrets: map[string]string{
			mobilemoney.Provider: p.Cfg.Webhooks.MobileMoneySecret,
			flutterwave.Provider: p.Cfg.Webhooks.FlutterwaveHash,
		},
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook authenticates a provider callback, records it once per
// provider event id and applies the reported status. A redelivered event
// that was already applied is accepted without effect.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.WebhookResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.WebhookResult{}, paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.ProviderExists(provider) {
		return paymentdomain.WebhookResult{}, paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "rejected")
		return paymentdomain.WebhookResult{}, paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		Provider: provider,
		Secret:   s.secrets[provider],
	})
	if err != nil {
		return paymentdomain.WebhookResult{}, err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "rejected")
		return paymentdomain.WebhookResult{}, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.obsMetrics.RecordWebhookEvent(ctx, provider, "ignored")
			return paymentdomain.WebhookResult{}, nil
		}
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "rejected")
		return paymentdomain.WebhookResult{}, err
	}
	event.Provider = provider

	stored, duplicate, err := s.record(ctx, event, payload)
	if err != nil {
		return paymentdomain.WebhookResult{}, err
	}
	if duplicate {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "duplicate")
		return paymentdomain.WebhookResult{Accepted: true}, nil
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("payment_ref", event.PaymentRef),
	)
	payment, err := s.repo.FindByExternalTxID(ctx, s.db, event.PaymentRef)
	if err != nil {
		return paymentdomain.WebhookResult{}, err
	}
	if payment == nil {
		log.Warn("webhook references unknown payment")
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "unmatched")
		return paymentdomain.WebhookResult{}, paymentdomain.ErrPaymentNotFound
	}

	_, mapped := paymentdomain.MapProviderStatus(event.Status)
	if _, err := s.paymentSvc.ApplyProviderStatus(ctx, paymentdomain.StatusUpdateRequest{
		PaymentID: payment.ID.String(),
		Status:    event.Status,
		Reason:    event.Reason,
	}); err != nil {
		// The event stays unprocessed so the provider's redelivery is applied.
		if errors.Is(err, paymentdomain.ErrConfirmationInProgress) {
			log.Warn("payment confirmation in progress, deferring webhook")
			s.obsMetrics.RecordWebhookEvent(ctx, provider, "deferred")
		} else {
			log.Error("failed to apply webhook status", zap.Error(err))
		}
		return paymentdomain.WebhookResult{}, err
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return paymentdomain.WebhookResult{}, err
	}
	s.obsMetrics.RecordWebhookEvent(ctx, provider, "processed")
	return paymentdomain.WebhookResult{Accepted: mapped}, nil
}

// record stores the delivery. duplicate is true when the same provider event
// was stored and fully processed before; a stored but unprocessed event is
// retried.
func (s *Service) record(ctx context.Context, event *paymentdomain.WebhookEvent, payload []byte) (*paymentdomain.EventRecord, bool, error) {
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       paymentdomain.EventTypeStatusUpdate,
		PaymentRef:      event.PaymentRef,
		Status:          strings.ToUpper(event.Status),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return &received, false, nil
	}

	stored, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, paymentdomain.ErrInvalidEvent
	}
	return stored, stored.ProcessedAt != nil, nil
}
