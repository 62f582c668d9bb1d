package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/cvtailor/internal/api"
	"github.com/digkill/cvtailor/internal/models"
	"github.com/digkill/cvtailor/internal/repository"
	"github.com/digkill/cvtailor/internal/session"
)

var (
	ErrInvalidGateway   = errors.New("unsupported payment gateway")
	ErrPlanUnavailable  = errors.New("plan is not available")
	ErrTopUpInFlight    = errors.New("top-up already in progress for this plan")
	ErrNoRedirectTarget = errors.New("no redirection target")
	ErrTopUpTimeout     = errors.New("top-up request timed out")
)

type BillingAPI interface {
	Plans(ctx context.Context) ([]models.CreditPlan, error)
	TopUp(ctx context.Context, req models.TopUpRequest, idempotencyKey string) (models.TopUpResponse, error)
}

// AttemptJournal records top-up attempts. Implementations must be safe for concurrent use.
type AttemptJournal interface {
	Create(ctx context.Context, attempt *models.TopUpAttempt) error
	UpdateStatus(ctx context.Context, attemptID, status, detail string) error
	ListRecent(ctx context.Context, sessionKey string, limit int) ([]models.TopUpAttempt, error)
}

// BillingService starts credit top-ups and hands the browser over to the gateway.
type BillingService struct {
	api     BillingAPI
	state   *session.StateManager
	journal AttemptJournal
	timeout time.Duration
	log     *slog.Logger
}

func NewBillingService(billing BillingAPI, state *session.StateManager, journal AttemptJournal, timeout time.Duration, log *slog.Logger) *BillingService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BillingService{
		api:     billing,
		state:   state,
		journal: journal,
		timeout: timeout,
		log:     log,
	}
}

// Plans fetches the credit catalog and returns its active plans.
func (s *BillingService) Plans(ctx context.Context, token string) ([]models.CreditPlan, error) {
	plans, err := s.api.Plans(api.WithToken(ctx, token))
	if err != nil {
		return nil, fmt.Errorf("fetch plans: %w", err)
	}

	active := make([]models.CreditPlan, 0, len(plans))
	for _, plan := range plans {
		if plan.IsActive {
			active = append(active, plan)
		}
	}
	return active, nil
}

// lookupPlan resolves slug against a freshly fetched catalog, so a plan
// deactivated on the server since the billing page was rendered is refused.
func (s *BillingService) lookupPlan(ctx context.Context, token, slug string) (*models.CreditPlan, error) {
	catalog, err := s.Plans(ctx, token)
	if err != nil {
		return nil, err
	}
	for _, plan := range catalog {
		if plan.Slug == slug {
			return &plan, nil
		}
	}
	return nil, ErrPlanUnavailable
}

// RequestTopUp asks the server to open a checkout session for the plan and
// returns the gateway URL the browser must be sent to. The cached balance is
// left untouched.
func (s *BillingService) RequestTopUp(ctx context.Context, token, planSlug, gatewayRaw string) (string, error) {
	gateway, ok := models.ParseGateway(gatewayRaw)
	if !ok {
		return "", ErrInvalidGateway
	}
	plan, err := s.lookupPlan(ctx, token, planSlug)
	if err != nil {
		return "", err
	}

	key := session.Key(token)
	if !s.state.Begin(key, plan.Slug) {
		return "", ErrTopUpInFlight
	}
	defer s.state.End(key, plan.Slug)

	attempt := &models.TopUpAttempt{
		AttemptID:  uuid.NewString(),
		SessionKey: key,
		PlanSlug:   plan.Slug,
		Gateway:    gateway,
		Status:     repository.AttemptInitiated,
	}
	if err := s.journal.Create(ctx, attempt); err != nil {
		s.log.Warn("journal top-up attempt", "attempt_id", attempt.AttemptID, "err", err)
	}

	reqCtx, cancel := context.WithTimeout(api.WithToken(ctx, token), s.timeout)
	defer cancel()

	resp, err := s.api.TopUp(reqCtx, models.TopUpRequest{Gateway: gateway, PlanID: plan.Slug}, attempt.AttemptID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTopUpTimeout, err)
		}
		s.finish(ctx, attempt.AttemptID, repository.AttemptFailed, err.Error())
		return "", fmt.Errorf("request top-up: %w", err)
	}

	redirect, ok := resp.RedirectURL()
	if !ok || !isAbsoluteHTTPURL(redirect) {
		s.finish(ctx, attempt.AttemptID, repository.AttemptFailed, ErrNoRedirectTarget.Error())
		return "", ErrNoRedirectTarget
	}

	s.finish(ctx, attempt.AttemptID, repository.AttemptRedirected, "")
	s.log.Info("top-up redirect issued", "attempt_id", attempt.AttemptID, "plan", plan.Slug, "gateway", gateway)
	return redirect, nil
}

// RecentAttempts lists the session's latest journaled attempts.
func (s *BillingService) RecentAttempts(ctx context.Context, token string, limit int) ([]models.TopUpAttempt, error) {
	attempts, err := s.journal.ListRecent(ctx, session.Key(token), limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// Processing reports whether a top-up for the plan is awaiting the server.
func (s *BillingService) Processing(token, planSlug string) bool {
	return s.state.InFlight(session.Key(token), planSlug)
}

func (s *BillingService) finish(ctx context.Context, attemptID, status, detail string) {
	if err := s.journal.UpdateStatus(context.WithoutCancel(ctx), attemptID, status, detail); err != nil {
		s.log.Warn("journal top-up status", "attempt_id", attemptID, "status", status, "err", err)
	}
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

// NopJournal is used when no database is configured.
type NopJournal struct{}

func (NopJournal) Create(context.Context, *models.TopUpAttempt) error { return nil }
func (NopJournal) UpdateStatus(context.Context, string, string, string) error { return nil }
func (NopJournal) ListRecent(context.Context, string, int) ([]models.TopUpAttempt, error) {
	return nil, nil
}
