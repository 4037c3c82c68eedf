// Package service reconciles an owner's deployment records between the local
// store and the live cluster. Once an owner has stored records the store is
// authoritative; the cluster is consulted only while the store is empty.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	appsv1 "k8s.io/api/apps/v1"

	"deploygate/internal/deployment/models"
	"deploygate/internal/platform/metrics"
	id "deploygate/pkg/domain"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/platform/audit"
	"deploygate/pkg/platform/sentinel"
	"deploygate/pkg/requestcontext"
)

type RecordStore interface {
	ListByOwner(ctx context.Context, owner, namespace string) ([]models.Record, error)
	SaveAll(ctx context.Context, records []models.Record) error
	Save(ctx context.Context, record *models.Record) error
	Delete(ctx context.Context, owner, namespace, name string) error
}

type ClusterGateway interface {
	List(ctx context.Context, owner, namespace string) ([]appsv1.Deployment, error)
	Create(ctx context.Context, owner, namespace string, d *appsv1.Deployment, opts models.CreateOptions) (*appsv1.Deployment, error)
	Delete(ctx context.Context, owner, namespace, name string) error
}

// OwnerResolver confirms that an owner name belongs to a registered user.
type OwnerResolver interface {
	ResolvePrincipal(ctx context.Context, name string) (id.Principal, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const tracerName = "deploygate/internal/deployment/service"

// Service holds no per-request state and is safe for concurrent use.
type Service struct {
	store          RecordStore
	cluster        ClusterGateway
	owners         OwnerResolver
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(store RecordStore, cluster ClusterGateway, owners OwnerResolver, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cluster: cluster,
		owners:  owners,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns owner's records, newest first. An empty namespace means all
// namespaces. When the store has nothing for owner, the cluster is listed by
// owner label and whatever it returns is back-filled in one batch.
func (s *Service) List(ctx context.Context, owner, namespace string) (records []models.Record, err error) {
	ctx, span := s.start(ctx, "deployment.List", owner, namespace)
	defer func() { end(span, err) }()

	if err := s.resolveOwner(ctx, owner); err != nil {
		return nil, err
	}

	records, err = s.store.ListByOwner(ctx, owner, namespace)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deployments")
	}
	if len(records) > 0 {
		span.SetAttributes(attribute.String("source", metrics.SourceStore))
		s.countList(metrics.SourceStore)
		return records, nil
	}

	deployments, err := s.cluster.List(ctx, owner, namespace)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list cluster deployments",
			"owner", owner,
			"namespace", namespace,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}
	if len(deployments) == 0 {
		span.SetAttributes(attribute.String("source", metrics.SourceEmpty))
		s.countList(metrics.SourceEmpty)
		return []models.Record{}, nil
	}

	records = make([]models.Record, 0, len(deployments))
	for i := range deployments {
		records = append(records, fromCluster(ctx, owner, &deployments[i]))
	}

	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	if err := s.store.SaveAll(context.WithoutCancel(ctx), records); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store deployments")
	}

	s.logger.InfoContext(ctx, "deployments back-filled from cluster",
		"owner", owner,
		"namespace", namespace,
		"count", len(records),
		"request_id", requestcontext.RequestID(ctx),
	)
	span.SetAttributes(
		attribute.String("source", metrics.SourceCluster),
		attribute.Int("backfilled", len(records)),
	)
	s.countList(metrics.SourceCluster)
	if s.metrics != nil {
		s.metrics.AddRecordsBackfilled(len(records))
	}
	event := audit.NewEvent(audit.EventDeploymentsBackfilled, owner)
	event.Namespace = namespace
	event.Count = len(records)
	s.emit(ctx, event)

	return records, nil
}

// Create submits d to the cluster under owner's label and records the
// result. A dry run is translated and returned but not stored.
func (s *Service) Create(ctx context.Context, owner, namespace string, d *appsv1.Deployment, opts models.CreateOptions) (_ *models.Record, err error) {
	ctx, span := s.start(ctx, "deployment.Create", owner, namespace)
	defer func() { end(span, err) }()
	span.SetAttributes(attribute.Bool("dry_run", opts.IsDryRun()))

	if err := s.resolveOwner(ctx, owner); err != nil {
		return nil, err
	}

	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	created, err := s.cluster.Create(context.WithoutCancel(ctx), owner, namespace, d, opts)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create cluster deployment",
			"owner", owner,
			"namespace", namespace,
			"name", d.Name,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	record := fromCluster(ctx, owner, created)
	if opts.IsDryRun() {
		return &record, nil
	}

	// The cluster object exists from here on; a failed store write leaves it
	// in place.
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	if err := s.store.Save(context.WithoutCancel(ctx), &record); err != nil {
		s.logger.ErrorContext(ctx, "deployment created but not stored",
			"owner", owner,
			"deployment", record.NaturalKey(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store deployment")
	}

	s.logger.InfoContext(ctx, "deployment created",
		"owner", owner,
		"deployment", record.NaturalKey(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementDeploymentsCreated()
	}
	event := audit.NewEvent(audit.EventDeploymentCreated, owner)
	event.Namespace = record.Namespace
	event.Resource = record.DeploymentName
	s.emit(ctx, event)

	return &record, nil
}

// Delete removes the named deployment from the cluster and then from the
// store. Either side may already be missing; only when both are is the
// deployment reported as not found.
func (s *Service) Delete(ctx context.Context, owner, namespace, name string) (err error) {
	ctx, span := s.start(ctx, "deployment.Delete", owner, namespace)
	defer func() { end(span, err) }()

	if err := s.resolveOwner(ctx, owner); err != nil {
		return err
	}

	if err := cancelled(ctx); err != nil {
		return err
	}
	clusterErr := s.cluster.Delete(context.WithoutCancel(ctx), owner, namespace, name)
	if clusterErr != nil && !errors.Is(clusterErr, sentinel.ErrNotFound) {
		return clusterErr
	}

	if err := cancelled(ctx); err != nil {
		return err
	}
	storeErr := s.store.Delete(context.WithoutCancel(ctx), owner, namespace, name)
	if storeErr != nil && !errors.Is(storeErr, sentinel.ErrNotFound) {
		return dErrors.Wrap(storeErr, dErrors.CodeInternal, "failed to delete stored deployment")
	}
	if clusterErr != nil && storeErr != nil {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("Deployment can not be found : %s/%s", namespace, name))
	}

	s.logger.InfoContext(ctx, "deployment deleted",
		"owner", owner,
		"namespace", namespace,
		"name", name,
		"in_cluster", clusterErr == nil,
		"in_store", storeErr == nil,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementDeploymentsDeleted()
	}
	event := audit.NewEvent(audit.EventDeploymentDeleted, owner)
	event.Namespace = namespace
	event.Resource = name
	s.emit(ctx, event)
	return nil
}

func (s *Service) resolveOwner(ctx context.Context, owner string) error {
	if _, err := s.owners.ResolvePrincipal(ctx, owner); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return nil
}

// fromCluster translates d, stamping the request time when the cluster did
// not report a creation time (dry runs, fakes).
func fromCluster(ctx context.Context, owner string, d *appsv1.Deployment) models.Record {
	r := models.FromCluster(owner, d)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = requestcontext.Now(ctx).Truncate(time.Second).UTC()
	}
	return r
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "request cancelled")
	}
	return nil
}

func (s *Service) countList(source string) {
	if s.metrics != nil {
		s.metrics.IncrementListOutcome(source)
	}
}

func (s *Service) start(ctx context.Context, name, owner, namespace string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("owner", owner),
		attribute.String("namespace", namespace),
	))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
