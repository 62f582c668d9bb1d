package service

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/digkill/cvtailor/internal/models"
	"github.com/digkill/cvtailor/internal/session"
)

const PaymentQueryParam = "payment"

type ListenerState string

const (
	ListenerIdle       ListenerState = "idle"
	ListenerReconciled ListenerState = "reconciled"
)

type AccountRefresher interface {
	Refresh(ctx context.Context, token string) (*models.Account, error)
}

// PaymentListener reacts to the payment=... parameter the gateway return
// redirect carries.
type PaymentListener struct {
	state    *session.StateManager
	accounts AccountRefresher
	log      *slog.Logger
}

func NewPaymentListener(state *session.StateManager, accounts AccountRefresher, log *slog.Logger) *PaymentListener {
	return &PaymentListener{state: state, accounts: accounts, log: log}
}

// Process handles one navigation. A navigationID already processed for the
// session is ignored, so re-rendering never fires the notification twice.
func (l *PaymentListener) Process(ctx context.Context, token, navigationID string, query url.Values) ListenerState {
	status := models.ParsePaymentStatus(query.Get(PaymentQueryParam))
	if status == models.PaymentNone {
		return ListenerIdle
	}

	key := session.Key(token)
	if !l.state.MarkNavigation(key, navigationID) {
		return ListenerIdle
	}

	switch status {
	case models.PaymentSuccess:
		l.state.Push(key, session.Flash{
			Level: session.LevelSuccess,
			Title: "Payment successful! Your credits have been updated.",
		})
		account, err := l.accounts.Refresh(ctx, token)
		if err != nil {
			// The success notice stays; the balance is refreshed on the next protected page.
			l.log.Warn("post-payment account refresh failed", "err", err)
		} else {
			l.log.Info("credits reconciled after payment", "credits", account.Credits)
		}
	case models.PaymentCancelled:
		l.state.Push(key, session.Flash{
			Level: session.LevelError,
			Title: "Payment was cancelled.",
		})
	}
	return ListenerReconciled
}

// WithoutPaymentParam returns the URL with the payment parameter removed.
func WithoutPaymentParam(u *url.URL) string {
	clean := *u
	query := clean.Query()
	query.Del(PaymentQueryParam)
	clean.RawQuery = query.Encode()
	return clean.RequestURI()
}
