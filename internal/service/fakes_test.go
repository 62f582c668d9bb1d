package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/digkill/cvtailor/internal/api"
	"github.com/digkill/cvtailor/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProfiles struct {
	calls   atomic.Int32
	credits atomic.Int32
	err     error
	gate    chan struct{}
	tokens  chan string
}

func (f *fakeProfiles) Profile(ctx context.Context) (*models.Account, error) {
	f.calls.Add(1)
	if f.tokens != nil {
		f.tokens <- api.TokenFrom(ctx)
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Account{Email: "ada@example.com", Credits: int(f.credits.Load())}, nil
}

type fakeBillingAPI struct {
	mu       sync.Mutex
	plans    []models.CreditPlan
	requests []models.TopUpRequest
	tokens   []string
	resp     models.TopUpResponse
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeBillingAPI) Plans(ctx context.Context) ([]models.CreditPlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plans, nil
}

func (f *fakeBillingAPI) setPlans(plans []models.CreditPlan) {
	f.mu.Lock()
	f.plans = plans
	f.mu.Unlock()
}

func (f *fakeBillingAPI) TopUp(ctx context.Context, req models.TopUpRequest, _ string) (models.TopUpResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.tokens = append(f.tokens, api.TokenFrom(ctx))
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return models.TopUpResponse{}, ctx.Err()
		}
	}
	return f.resp, f.err
}

type memoryJournal struct {
	mu       sync.Mutex
	statuses map[string][]string
}

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{statuses: make(map[string][]string)}
}

func (j *memoryJournal) Create(_ context.Context, a *models.TopUpAttempt) error {
	j.mu.Lock()
	j.statuses[a.AttemptID] = append(j.statuses[a.AttemptID], a.Status)
	j.mu.Unlock()
	return nil
}

func (j *memoryJournal) UpdateStatus(_ context.Context, attemptID, status, _ string) error {
	j.mu.Lock()
	j.statuses[attemptID] = append(j.statuses[attemptID], status)
	j.mu.Unlock()
	return nil
}

func (j *memoryJournal) ListRecent(context.Context, string, int) ([]models.TopUpAttempt, error) {
	return nil, nil
}

func (j *memoryJournal) histories() [][]string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out [][]string
	for _, h := range j.statuses {
		out = append(out, h)
	}
	return out
}
