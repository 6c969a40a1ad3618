package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/sponsornet/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	ObjectNode      = "node"
	ObjectPayment   = "payment"
	ObjectStatement = "statement"
	ObjectPackage   = "package"
	ObjectAuditLog  = "audit_log"
	ObjectScheduler = "scheduler"
)

const (
	ActionNodeRegister = "node.register"
	ActionNodeView     = "node.view"
	ActionNodeViewAny  = "node.view_any"

	ActionPaymentInitiate  = "payment.initiate"
	ActionPaymentView      = "payment.view"
	ActionPaymentConfirm   = "payment.confirm"
	ActionPaymentFail      = "payment.fail"
	ActionPaymentReconcile = "payment.reconcile"

	ActionStatementView     = "statement.view"
	ActionStatementViewAny  = "statement.view_any"
	ActionStatementWithdraw = "statement.withdraw"

	ActionPackageView = "package.view"

	ActionAuditLogView = "audit_log.view"

	ActionSchedulerExpirePackages = "scheduler.expire_packages"
	ActionSchedulerFailPayments   = "scheduler.fail_stale_payments"
)

const (
	RoleSystem = "role:system"
	RoleAdmin  = "role:admin"
	RoleMember = "role:member"
)

// Service answers whether an actor may perform an action on an object.
// Actors are "system", "admin:<id>" or "user:<id>".
type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := resolveRole(actor)
	if err != nil {
		return err
	}
	if err := s.ensureGrouping(actor, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.audit(ctx, "authorization.denied", actor, object, action)
		return ErrForbidden
	}
	if shouldAuditGrant(action) {
		s.audit(ctx, "authorization.granted", actor, object, action)
	}
	return nil
}

func resolveRole(actor string) (string, error) {
	if actor == "system" {
		return RoleSystem, nil
	}
	prefix, rawID, ok := strings.Cut(actor, ":")
	if !ok {
		return "", ErrInvalidActor
	}
	id, err := snowflake.ParseString(rawID)
	if err != nil || id <= 0 {
		return "", ErrInvalidActor
	}
	switch prefix {
	case "admin":
		return RoleAdmin, nil
	case "user":
		return RoleMember, nil
	default:
		return "", ErrInvalidActor
	}
}

// ensureGrouping keeps exactly one role link per subject.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]any, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) audit(ctx context.Context, auditAction string, actor string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, auditAction, "authorization", fmt.Sprintf("%s:%s", object, action), map[string]any{
		"object":  object,
		"action":  action,
		"subject": actor,
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionPaymentConfirm, ActionPaymentFail, ActionPaymentReconcile, ActionAuditLogView:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members act on their own nodes; ownership is checked by the caller.
		{RoleMember, ObjectNode, ActionNodeRegister},
		{RoleMember, ObjectNode, ActionNodeView},
		{RoleMember, ObjectPayment, ActionPaymentInitiate},
		{RoleMember, ObjectPayment, ActionPaymentView},
		{RoleMember, ObjectStatement, ActionStatementView},
		{RoleMember, ObjectStatement, ActionStatementWithdraw},
		{RoleMember, ObjectPackage, ActionPackageView},

		{RoleAdmin, ObjectNode, ActionNodeRegister},
		{RoleAdmin, ObjectNode, ActionNodeView},
		{RoleAdmin, ObjectNode, ActionNodeViewAny},
		{RoleAdmin, ObjectPayment, ActionPaymentInitiate},
		{RoleAdmin, ObjectPayment, ActionPaymentView},
		{RoleAdmin, ObjectPayment, ActionPaymentConfirm},
		{RoleAdmin, ObjectPayment, ActionPaymentFail},
		{RoleAdmin, ObjectPayment, ActionPaymentReconcile},
		{RoleAdmin, ObjectStatement, ActionStatementView},
		{RoleAdmin, ObjectStatement, ActionStatementViewAny},
		{RoleAdmin, ObjectPackage, ActionPackageView},
		{RoleAdmin, ObjectAuditLog, ActionAuditLogView},

		// Background jobs.
		{RoleSystem, ObjectScheduler, ActionSchedulerExpirePackages},
		{RoleSystem, ObjectScheduler, ActionSchedulerFailPayments},
		{RoleSystem, ObjectPayment, ActionPaymentReconcile},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
