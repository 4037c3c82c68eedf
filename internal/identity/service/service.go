package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"deploygate/internal/identity/models"
	"deploygate/internal/platform/metrics"
	id "deploygate/pkg/domain"
	dErrors "deploygate/pkg/domain-errors"
	"deploygate/pkg/platform/audit"
	"deploygate/pkg/platform/sentinel"
	"deploygate/pkg/requestcontext"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByUserName(ctx context.Context, userName string) (*models.User, error)
}

type TokenIssuer interface {
	Issue(subject string) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service registers users, issues credentials and resolves token subjects
// back to principals.
type Service struct {
	users          UserStore
	tokens         TokenIssuer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	bcryptCost     int
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

// WithBcryptCost lowers hashing cost in tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// New constructs a Service.
func New(users UserStore, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:      users,
		tokens:     tokens,
		logger:     slog.Default(),
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user holding the standard user entitlement.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation,
				fmt.Sprintf("Given parameter password must be at most %d bytes", models.MaxPasswordBytes))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user := &models.User{
		ID:          id.NewUserID(),
		UserName:    req.UserName,
		Name:        req.Name,
		Password:    string(hash),
		Authorities: []string{id.EntitlementUser},
		CreatedAt:   requestcontext.Now(ctx).UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "User already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_name", user.UserName,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.NewEvent(audit.EventUserRegistered, user.UserName))
	if s.metrics != nil {
		s.metrics.IncrementUsersRegistered()
	}
	return user, nil
}

// IssueToken checks the password and returns a signed bearer token.
func (s *Service) IssueToken(ctx context.Context, req *models.TokenRequest) (string, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	user, err := s.findUser(ctx, req.UserName)
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		s.logger.WarnContext(ctx, "password mismatch",
			"user_name", req.UserName,
			"request_id", requestcontext.RequestID(ctx),
		)
		return "", dErrors.New(dErrors.CodeNotFound, "Username and password are not valid")
	}

	token, err := s.tokens.Issue(user.UserName)
	if err != nil {
		return "", err
	}

	s.emit(ctx, audit.NewEvent(audit.EventTokenIssued, user.UserName))
	if s.metrics != nil {
		s.metrics.IncrementTokensIssued()
	}
	return token, nil
}

// ResolvePrincipal maps a verified token subject to the caller's identity.
func (s *Service) ResolvePrincipal(ctx context.Context, name string) (id.Principal, error) {
	user, err := s.findUser(ctx, name)
	if err != nil {
		return id.Principal{}, err
	}
	return user.Principal(), nil
}

func (s *Service) findUser(ctx context.Context, userName string) (*models.User, error) {
	user, err := s.users.FindByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("User can not be found by given username : %s", userName))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
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
