package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/digkill/cvtailor/internal/api"
	"github.com/digkill/cvtailor/internal/session"
)

type tokenCtxKey struct{}

// requireSession gates protected pages on the presence of a session cookie.
// Validity is left to the server: the first 401 ends the session.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cfg.SessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		ctx := context.WithValue(r.Context(), tokenCtxKey{}, cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenOf(r *http.Request) string {
	token, _ := r.Context().Value(tokenCtxKey{}).(string)
	return token
}

// apiContext carries the session token to the backend client.
func apiContext(r *http.Request) context.Context {
	return api.WithToken(r.Context(), tokenOf(r))
}

func (s *Server) startSession(w http.ResponseWriter, token string) {
	expires := tokenExpiry(token, s.cfg.SessionTTL, time.Now())
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// endSession clears the cookie and every piece of state cached for the token.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	if token == "" {
		return
	}
	s.accounts.Invalidate(r.Context(), token)
	s.state.Reset(session.Key(token))
}

// tokenExpiry uses the exp claim when the token is a JWT. The signature is not
// checked; the cookie simply should not outlive the token.
func tokenExpiry(token string, fallback time.Duration, now time.Time) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		if exp := claims.ExpiresAt.Time; exp.After(now) {
			return exp
		}
	}
	return now.Add(fallback)
}

// fail converts an API error into a notification and sends the browser back.
// A rejected session goes to the login page instead.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, title, back string) {
	if s.expired(w, r, err) {
		return
	}
	s.log.Error("request failed", "path", r.URL.Path, "err", err)
	s.notify(r, session.LevelError, title, api.UserMessage(err))
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// expired ends the session and redirects to the login page when err is a 401.
func (s *Server) expired(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, api.ErrUnauthorized) {
		return false
	}
	s.log.Info("session rejected by api", "path", r.URL.Path)
	s.endSession(w, r, tokenOf(r))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
	return true
}

func (s *Server) notify(r *http.Request, level session.Level, title, message string) {
	token := tokenOf(r)
	if token == "" {
		return
	}
	s.state.Push(session.Key(token), session.Flash{Level: level, Title: title, Message: message})
}
