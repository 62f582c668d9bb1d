package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/digkill/cvtailor/internal/api"
	"github.com/digkill/cvtailor/internal/models"
	"github.com/digkill/cvtailor/internal/session"
)

type ProfileFetcher interface {
	Profile(ctx context.Context) (*models.Account, error)
}

type AccountCache interface {
	Get(ctx context.Context, key string) (*models.Account, bool, error)
	Set(ctx context.Context, key string, account *models.Account) error
	Delete(ctx context.Context, key string) error
}

type AccountEventKind string

const (
	AccountRefreshed   AccountEventKind = "refreshed"
	AccountInvalidated AccountEventKind = "invalidated"
)

type AccountEvent struct {
	Kind       AccountEventKind
	SessionKey string
	Account    *models.Account
}

// AccountService is the single accessor for the cached account snapshot of
// each session. Snapshots are only ever replaced by a server fetch.
type AccountService struct {
	fetcher ProfileFetcher
	cache   AccountCache
	log     *slog.Logger
	group   singleflight.Group

	mu      sync.Mutex
	subs    map[int]chan AccountEvent
	nextSub int
}

func NewAccountService(fetcher ProfileFetcher, cache AccountCache, log *slog.Logger) *AccountService {
	return &AccountService{
		fetcher: fetcher,
		cache:   cache,
		log:     log,
		subs:    make(map[int]chan AccountEvent),
	}
}

// Current returns the cached snapshot, loading it on first use.
func (s *AccountService) Current(ctx context.Context, token string) (*models.Account, error) {
	key := session.Key(token)
	account, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("account cache read failed", "err", err)
	}
	if ok {
		return account, nil
	}
	return s.Refresh(ctx, token)
}

// Refresh refetches the account from the server and overwrites the snapshot.
// Concurrent refreshes of one session share a single request.
func (s *AccountService) Refresh(ctx context.Context, token string) (*models.Account, error) {
	key := session.Key(token)
	v, err, _ := s.group.Do(key, func() (any, error) {
		fetchCtx := api.WithToken(context.WithoutCancel(ctx), token)
		account, err := s.fetcher.Profile(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(fetchCtx, key, account); err != nil {
			s.log.Warn("account cache write failed", "err", err)
		}
		return account, nil
	})
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			s.Invalidate(ctx, token)
		}
		return nil, fmt.Errorf("refresh account: %w", err)
	}

	account := v.(*models.Account)
	s.publish(AccountEvent{Kind: AccountRefreshed, SessionKey: key, Account: account})
	snapshot := *account
	return &snapshot, nil
}

// Invalidate drops the snapshot, on logout or when the server rejects the session.
func (s *AccountService) Invalidate(ctx context.Context, token string) {
	key := session.Key(token)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Warn("account cache delete failed", "err", err)
	}
	s.publish(AccountEvent{Kind: AccountInvalidated, SessionKey: key})
}

// Subscribe streams account events until cancel is called. Slow subscribers
// miss events rather than block publishers.
func (s *AccountService) Subscribe(buffer int) (<-chan AccountEvent, func()) {
	ch := make(chan AccountEvent, buffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *AccountService) publish(evt AccountEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
