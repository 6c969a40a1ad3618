package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/sponsornet/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/sponsornet/internal/catalog/domain"
	"github.com/smallbiznis/sponsornet/internal/clock"
	commissiondomain "github.com/smallbiznis/sponsornet/internal/commission/domain"
	"github.com/smallbiznis/sponsornet/internal/config"
	ledgerdomain "github.com/smallbiznis/sponsornet/internal/ledger/domain"
	networkdomain "github.com/smallbiznis/sponsornet/internal/network/domain"
	nodepackagedomain "github.com/smallbiznis/sponsornet/internal/nodepackage/domain"
	notificationdomain "github.com/smallbiznis/sponsornet/internal/notification/domain"
	notificationservice "github.com/smallbiznis/sponsornet/internal/notification/service"
	"github.com/smallbiznis/sponsornet/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sponsornet/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/sponsornet/internal/payment/domain"
	"github.com/smallbiznis/sponsornet/internal/ratelimit"
	userdomain "github.com/smallbiznis/sponsornet/internal/user/domain"
	"github.com/smallbiznis/sponsornet/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	confirmLockTTL    = 30 * time.Second
	staleFailReason   = "payment timed out"
	defaultStaleLimit = 100
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Rewards       *config.RewardConfigHolder
	Repo          paymentdomain.Repository
	Catalog       catalogdomain.Service
	Packages      nodepackagedomain.Service
	Nodes         networkdomain.Service
	Users         userdomain.Service
	LedgerSvc     ledgerdomain.Service
	CommissionSvc commissiondomain.Service
	Dispatcher    *notificationservice.Dispatcher `optional:"true"`
	Locker        *ratelimit.Locker               `optional:"true"`
	AuditSvc      auditdomain.Service             `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics             `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	rewards       *config.RewardConfigHolder
	repo          paymentdomain.Repository
	catalog       catalogdomain.Service
	packages      nodepackagedomain.Service
	nodes         networkdomain.Service
	users         userdomain.Service
	ledgerSvc     ledgerdomain.Service
	commissionSvc commissiondomain.Service
	dispatcher    *notificationservice.Dispatcher
	locker        *ratelimit.Locker
	auditSvc      auditdomain.Service
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		rewards:       p.Rewards,
		repo:          p.Repo,
		catalog:       p.Catalog,
		packages:      p.Packages,
		nodes:         p.Nodes,
		users:         p.Users,
		ledgerSvc:     p.LedgerSvc,
		commissionSvc: p.CommissionSvc,
		dispatcher:    p.Dispatcher,
		locker:        p.Locker,
		auditSvc:      p.AuditSvc,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (paymentdomain.Payment, error) {
	nodeID, err := parseID(req.NodeID, paymentdomain.ErrInvalidNodeID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	packageID, err := parseID(req.PackageID, paymentdomain.ErrInvalidPackageID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	amount = amount.Round(2)
	method, ok := paymentdomain.ParseMethod(req.Method)
	if !ok {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMethod
	}
	externalTxID := strings.TrimSpace(req.ExternalTxID)
	if externalTxID == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidExternalTxID
	}

	node, err := s.nodes.GetNode(ctx, nodeID.String())
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	pkg, err := s.catalog.GetPackage(ctx, packageID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if !pkg.IsActive {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPackageID
	}
	if err := s.checkUpgrade(ctx, node.ID, pkg); err != nil {
		return paymentdomain.Payment{}, err
	}

	existing, err := s.repo.FindByExternalTxID(ctx, s.db, externalTxID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if existing != nil {
		return paymentdomain.Payment{}, paymentdomain.ErrDuplicateTransaction
	}

	now := s.clock.Now()
	payment := paymentdomain.Payment{
		ID:           s.genID.Generate(),
		NodeID:       node.ID,
		PackageID:    pkg.ID,
		Amount:       amount,
		ExternalTxID: externalTxID,
		Method:       method,
		Status:       paymentdomain.StatusPending,
		Phone:        optionalString(req.Phone),
		Reference:    optionalString(req.Reference),
		Metadata:     datatypes.JSONMap{"package_level": pkg.Level},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return paymentdomain.ErrDuplicateTransaction
			}
			return err
		}
		if _, err := s.ledgerSvc.Create(ctx, tx, ledgerdomain.CreateStatementRequest{
			NodeID:        node.ID,
			Amount:        amount,
			Type:          ledgerdomain.StatementTypeDebit,
			Status:        ledgerdomain.StatementStatusPending,
			ReferenceType: ledgerdomain.ReferenceTypePayment,
			ReferenceID:   payment.ID,
			Description:   fmt.Sprintf("package purchase: %s", pkg.Name),
		}); err != nil {
			return err
		}
		return s.packages.UpsertPending(ctx, tx, node.ID, pkg.ID)
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	s.obsMetrics.RecordPaymentTransition(ctx, string(paymentdomain.StatusPending), "initiate")
	s.audit(ctx, auditdomain.ActionPaymentInitiated, payment, map[string]any{
		"external_tx_id": payment.ExternalTxID,
		"method":         string(payment.Method),
		"phone":          req.Phone,
	})
	return payment, nil
}

// checkUpgrade rejects a purchase that is not strictly above the tier the
// node currently holds.
func (s *Service) checkUpgrade(ctx context.Context, nodeID snowflake.ID, pkg catalogdomain.Package) error {
	current, err := s.packages.GetByNode(ctx, s.db, nodeID)
	if err != nil {
		return err
	}
	if current == nil || !current.IsActive() {
		return nil
	}
	held, err := s.catalog.GetPackage(ctx, current.PackageID)
	if err != nil {
		return err
	}
	if pkg.Level <= held.Level {
		return paymentdomain.ErrInvalidUpgrade
	}
	return nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (paymentdomain.Payment, error) {
	paymentID, err := parseID(id, paymentdomain.ErrInvalidPaymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	return s.load(ctx, paymentID)
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *payment, nil
}

// ConfirmSuccess settles a payment. Every financial effect runs in one
// transaction that starts with a CAS on the payment status, so concurrent
// confirmations apply the effects once.
func (s *Service) ConfirmSuccess(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	if id == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentID
	}
	release, held := s.acquire(ctx, id)
	defer release()

	payment, err := s.load(ctx, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}
	if !held {
		return payment, paymentdomain.ErrConfirmationInProgress
	}

	pkg, err := s.catalog.GetPackage(ctx, payment.PackageID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	node, err := s.nodes.GetNode(ctx, payment.NodeID.String())
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	bonus := decimal.NewFromFloat(s.rewards.Get().ActivationBonus).Round(2)

	var (
		applied    bool
		bonusPaid  bool
		commission commissiondomain.Result
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		changed, err := s.repo.Transition(ctx, tx, id, paymentdomain.OpenStatuses, paymentdomain.StatusSuccessful, nil, now)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		applied = true

		if _, err := s.packages.Activate(ctx, tx, node.ID, pkg); err != nil {
			return fmt.Errorf("activate package: %w", err)
		}
		if err := s.nodes.Activate(ctx, tx, node.ID); err != nil {
			return fmt.Errorf("activate node: %w", err)
		}
		if err := s.settleLedger(ctx, tx, payment); err != nil {
			return err
		}

		commission, err = s.commissionSvc.Distribute(ctx, tx, commissiondomain.Input{
			NodeID:    node.ID,
			Amount:    payment.Amount,
			PackageID: pkg.ID,
			PaymentID: &payment.ID,
		})
		if err != nil {
			return err
		}

		if bonus.IsPositive() {
			prior, err := s.repo.CountSuccessful(ctx, tx, node.ID, payment.ID)
			if err != nil {
				return err
			}
			if prior == 0 {
				if _, err := s.ledgerSvc.Create(ctx, tx, ledgerdomain.CreateStatementRequest{
					NodeID:        node.ID,
					Amount:        bonus,
					Type:          ledgerdomain.StatementTypeCredit,
					Status:        ledgerdomain.StatementStatusCompleted,
					ReferenceType: ledgerdomain.ReferenceTypeActivationBonus,
					ReferenceID:   payment.ID,
					Description:   "activation bonus",
				}); err != nil {
					return fmt.Errorf("activation bonus: %w", err)
				}
				bonusPaid = true
			}
		}

		return s.users.SetVerified(ctx, tx, node.UserID)
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Error("payment confirmation rolled back",
			zap.String("payment_id", id.String()),
			zap.Error(err),
		)
		return paymentdomain.Payment{}, err
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if !applied {
		return updated, nil
	}

	messages := []notificationdomain.Message{{
		UserID: node.UserID,
		Title:  "Payment successful",
		Body:   fmt.Sprintf("Your payment of %s for %s was received and the package is active.", payment.Amount.StringFixed(2), pkg.Name),
		Type:   notificationdomain.TypePayment,
	}}
	if bonusPaid {
		messages = append(messages, notificationdomain.Message{
			UserID: node.UserID,
			Title:  "Activation bonus",
			Body:   fmt.Sprintf("You received an activation bonus of %s.", bonus.StringFixed(2)),
			Type:   notificationdomain.TypeActivationBonus,
		})
	}
	messages = append(messages, commission.Notifications...)
	s.dispatcher.Dispatch(ctx, messages...)

	s.obsMetrics.RecordPaymentTransition(ctx, string(paymentdomain.StatusSuccessful), "confirm")
	for _, dist := range commission.Distributions {
		s.obsMetrics.RecordCommissionPayout(ctx, dist.Level)
	}
	s.audit(ctx, auditdomain.ActionPaymentSucceeded, updated, map[string]any{
		"package_id":        pkg.ID.String(),
		"commission_total":  commission.Total.StringFixed(2),
		"commission_levels": len(commission.Distributions),
		"activation_bonus":  bonusPaid,
	})
	return updated, nil
}

// settleLedger credits the paid amount and completes the pending purchase
// debit, leaving the node balance unchanged by the purchase itself.
func (s *Service) settleLedger(ctx context.Context, tx *gorm.DB, payment paymentdomain.Payment) error {
	if _, err := s.ledgerSvc.Create(ctx, tx, ledgerdomain.CreateStatementRequest{
		NodeID:        payment.NodeID,
		Amount:        payment.Amount,
		Type:          ledgerdomain.StatementTypeCredit,
		Status:        ledgerdomain.StatementStatusCompleted,
		ReferenceType: ledgerdomain.ReferenceTypeDeposit,
		ReferenceID:   payment.ID,
		Description:   "payment received",
	}); err != nil {
		return fmt.Errorf("deposit statement: %w", err)
	}

	pending, err := s.ledgerSvc.FindByReference(ctx, tx, ledgerdomain.ReferenceTypePayment, payment.ID, ledgerdomain.StatementTypeDebit)
	if err != nil {
		return err
	}
	if pending == nil {
		_, err := s.ledgerSvc.Create(ctx, tx, ledgerdomain.CreateStatementRequest{
			NodeID:        payment.NodeID,
			Amount:        payment.Amount,
			Type:          ledgerdomain.StatementTypeDebit,
			Status:        ledgerdomain.StatementStatusCompleted,
			ReferenceType: ledgerdomain.ReferenceTypePayment,
			ReferenceID:   payment.ID,
			Description:   "package purchase",
		})
		return err
	}
	if _, err := s.ledgerSvc.CompleteStatement(ctx, tx, pending.ID); err != nil {
		return fmt.Errorf("complete purchase statement: %w", err)
	}
	return nil
}

func (s *Service) ConfirmFailure(ctx context.Context, id snowflake.ID, reason string) (paymentdomain.Payment, error) {
	return s.closeUnsuccessful(ctx, id, paymentdomain.StatusFailed, reason)
}

func (s *Service) ConfirmCancelled(ctx context.Context, id snowflake.ID, reason string) (paymentdomain.Payment, error) {
	return s.closeUnsuccessful(ctx, id, paymentdomain.StatusCancelled, reason)
}

func (s *Service) closeUnsuccessful(ctx context.Context, id snowflake.ID, status paymentdomain.Status, reason string) (paymentdomain.Payment, error) {
	if id == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentID
	}
	release, held := s.acquire(ctx, id)
	defer release()

	payment, err := s.load(ctx, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment.Status.IsTerminal() {
		return payment, nil
	}
	if !held {
		return payment, paymentdomain.ErrConfirmationInProgress
	}
	node, err := s.nodes.GetNode(ctx, payment.NodeID.String())
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	var applied bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := s.repo.Transition(ctx, tx, id, paymentdomain.OpenStatuses, status, optionalString(reason), s.clock.Now())
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		applied = true

		pending, err := s.ledgerSvc.FindByReference(ctx, tx, ledgerdomain.ReferenceTypePayment, payment.ID, ledgerdomain.StatementTypeDebit)
		if err != nil {
			return err
		}
		if pending != nil {
			if _, err := s.ledgerSvc.FailStatement(ctx, tx, pending.ID); err != nil {
				return err
			}
		}
		_, err = s.packages.CancelPending(ctx, tx, payment.NodeID, payment.PackageID)
		return err
	})
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if !applied {
		return updated, nil
	}

	title, action := "Payment failed", auditdomain.ActionPaymentFailed
	if status == paymentdomain.StatusCancelled {
		title, action = "Payment cancelled", auditdomain.ActionPaymentCancelled
	}
	body := fmt.Sprintf("Your payment of %s was not completed.", payment.Amount.StringFixed(2))
	if reason != "" {
		body = fmt.Sprintf("Your payment of %s was not completed: %s.", payment.Amount.StringFixed(2), reason)
	}
	s.dispatcher.Dispatch(ctx, notificationdomain.Message{
		UserID: node.UserID,
		Title:  title,
		Body:   body,
		Type:   notificationdomain.TypePayment,
	})
	s.obsMetrics.RecordPaymentTransition(ctx, string(status), "confirm")
	s.audit(ctx, action, updated, map[string]any{"reason": reason})
	return updated, nil
}

func (s *Service) ApplyProviderStatus(ctx context.Context, req paymentdomain.StatusUpdateRequest) (paymentdomain.Payment, error) {
	id, err := parseID(req.PaymentID, paymentdomain.ErrInvalidPaymentID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	raw := strings.TrimSpace(req.Status)
	if raw == "" {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidStatus
	}

	status, ok := paymentdomain.MapProviderStatus(raw)
	if !ok {
		if strings.EqualFold(raw, string(paymentdomain.StatusProcessing)) {
			return s.markProcessing(ctx, id)
		}
		logger.WithContext(ctx, s.log).Info("ignoring unmapped provider status",
			zap.String("payment_id", id.String()),
			zap.String("status", raw),
		)
		return s.load(ctx, id)
	}

	switch status {
	case paymentdomain.StatusSuccessful:
		return s.ConfirmSuccess(ctx, id)
	case paymentdomain.StatusFailed:
		return s.ConfirmFailure(ctx, id, strings.TrimSpace(req.Reason))
	default:
		return s.ConfirmCancelled(ctx, id, strings.TrimSpace(req.Reason))
	}
}

func (s *Service) markProcessing(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	changed, err := s.repo.Transition(ctx, s.db, id,
		[]paymentdomain.Status{paymentdomain.StatusPending},
		paymentdomain.StatusProcessing,
		nil,
		s.clock.Now(),
	)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if changed {
		s.obsMetrics.RecordPaymentTransition(ctx, string(paymentdomain.StatusProcessing), "confirm")
	}
	return s.load(ctx, id)
}

func (s *Service) FailStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	if limit <= 0 {
		limit = defaultStaleLimit
	}
	ids, err := s.repo.ListStale(ctx, s.db, s.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}

	failed := 0
	var errs []error
	for _, id := range ids {
		payment, err := s.ConfirmFailure(ctx, id, staleFailReason)
		if errors.Is(err, paymentdomain.ErrConfirmationInProgress) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("payment %s: %w", id, err))
			continue
		}
		if payment.Status == paymentdomain.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		s.log.Info("failed stale payments", zap.Int("count", failed))
	}
	return failed, errors.Join(errs...)
}

// acquire takes the per-payment confirmation lock when redis is configured.
// held is false only when another process owns the lock. Lock errors fall
// back to the database CAS.
func (s *Service) acquire(ctx context.Context, id snowflake.ID) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	unlock, held, err := s.locker.HoldPayment(ctx, id, confirmLockTTL)
	if err != nil {
		s.log.Warn("payment lock unavailable", zap.String("payment_id", id.String()), zap.Error(err))
		return func() {}, true
	}
	if !held {
		return func() {}, false
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release payment lock", zap.String("payment_id", id.String()), zap.Error(err))
		}
	}, true
}

func (s *Service) audit(ctx context.Context, action string, payment paymentdomain.Payment, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"node_id": payment.NodeID.String(),
		"amount":  payment.Amount.StringFixed(2),
		"status":  string(payment.Status),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	if err := s.auditSvc.AuditLog(ctx, action, "payment", payment.ID.String(), metadata); err != nil {
		s.log.Warn("failed to write payment audit log", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, invalid
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid
	}
	return snowflake.ID(id), nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
