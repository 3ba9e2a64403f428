// Package service orchestrates eligibility, issuance and confirmation of
// mint authorizations.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mintgate/internal/audit"
	"mintgate/internal/mint/authorization"
	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
)

type Resolver interface {
	Resolve(ctx context.Context, address string) (models.Eligibility, error)
	GraceWindow() time.Duration
}

type Issuer interface {
	Issue(ctx context.Context, req authorization.IssueRequest) (*models.Authorization, error)
}

type RecordStore interface {
	FindByID(ctx context.Context, id int64) (*models.MintRecord, error)
	Confirm(ctx context.Context, category int, ev models.ConfirmationEvidence, confirmedAt int64) error
}

type ClaimStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// CategoryLocator maps an identifier back to the category range holding it.
type CategoryLocator interface {
	CategoryOf(id int64) (int, bool)
}

type StatusReporter interface {
	Status(ctx context.Context) ([]models.CategoryStatus, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

const defaultOwnerClaimTTL = 30 * time.Second

// Service is the mint gatekeeper's application layer.
type Service struct {
	resolver      Resolver
	issuer        Issuer
	records       RecordStore
	claims        ClaimStore
	categories    CategoryLocator
	status        StatusReporter
	logger        *slog.Logger
	metrics       *metrics.Metrics
	auditor       AuditPublisher
	tracer        trace.Tracer
	ownerClaimTTL time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithOwnerClaimTTL bounds how long a crashed request can block its owner.
func WithOwnerClaimTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ownerClaimTTL = d
		}
	}
}

// WithStatusReporter enables Status.
func WithStatusReporter(r StatusReporter) Option {
	return func(s *Service) {
		s.status = r
	}
}

func New(resolver Resolver, issuer Issuer, records RecordStore, claims ClaimStore, categories CategoryLocator, opts ...Option) *Service {
	s := &Service{
		resolver:      resolver,
		issuer:        issuer,
		records:       records,
		claims:        claims,
		categories:    categories,
		logger:        slog.Default(),
		tracer:        otel.Tracer("mintgate/mint"),
		ownerClaimTTL: defaultOwnerClaimTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, e audit.Event) {
	if s.auditor != nil {
		s.auditor.Emit(ctx, e)
	}
}
