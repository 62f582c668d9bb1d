package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/digkill/cvtailor/internal/api"
	"github.com/digkill/cvtailor/internal/config"
	"github.com/digkill/cvtailor/internal/repository"
	"github.com/digkill/cvtailor/internal/service"
	"github.com/digkill/cvtailor/internal/session"
)

const testToken = "session-token"

type fakeBackend struct {
	profileHits atomic.Int32
	topUpHits   atomic.Int32
	credits     atomic.Int32

	mu           sync.Mutex
	topUpBody    string
	unauthorized bool
	lastAuth     string
	profileBody  map[string]any
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /profile", func(w http.ResponseWriter, r *http.Request) {
		b.profileHits.Add(1)
		if b.reject(w, r) {
			return
		}
		writeJSON(t, w, map[string]any{
			"_id":         "u1",
			"fullName":    "Ada Lovelace",
			"email":       "ada@example.com",
			"phoneNumber": "+234 555 0100",
			"credits":     b.credits.Load(),
		})
	})
	mux.HandleFunc("PATCH /profile/basic", func(w http.ResponseWriter, r *http.Request) {
		if b.reject(w, r) {
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode profile update: %v", err)
		}
		b.mu.Lock()
		b.profileBody = body
		b.mu.Unlock()
		writeJSON(t, w, map[string]bool{"ok": true})
	})
	mux.HandleFunc("GET /payment/plans", func(w http.ResponseWriter, r *http.Request) {
		if b.reject(w, r) {
			return
		}
		writeJSON(t, w, []map[string]any{
			{"_id": "p1", "slug": "starter", "name": "Starter", "credits": 5, "priceNgn": 5000, "priceUsd": 5, "isActive": true},
			{"_id": "p2", "slug": "legacy", "name": "Legacy", "credits": 1, "priceNgn": 100, "priceUsd": 1, "isActive": false},
		})
	})
	mux.HandleFunc("POST /payment/top-up", func(w http.ResponseWriter, r *http.Request) {
		b.topUpHits.Add(1)
		if b.reject(w, r) {
			return
		}
		b.mu.Lock()
		body := b.topUpBody
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Invalid credentials"}`)
			return
		}
		writeJSON(t, w, map[string]string{"access_token": testToken})
	})
	mux.HandleFunc("GET /application", func(w http.ResponseWriter, r *http.Request) {
		if b.reject(w, r) {
			return
		}
		writeJSON(t, w, map[string]any{
			"data": []map[string]any{{"_id": "a1", "jobTitle": "Go Engineer", "companyName": "Acme", "status": "applied"}},
			"meta": map[string]any{"total": 1, "page": 1, "lastPage": 1},
		})
	})
	return mux
}

func (b *fakeBackend) reject(w http.ResponseWriter, r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastAuth = r.Header.Get("Authorization")
	if b.unauthorized {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Unauthorized"}`)
		return true
	}
	return false
}

func (b *fakeBackend) authorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuth
}

func (b *fakeBackend) profileUpdate() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profileBody
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func newTestServer(t *testing.T, backend *fakeBackend) *Server {
	t.Helper()
	upstream := httptest.NewServer(backend.handler(t))
	t.Cleanup(upstream.Close)

	cfg := config.Config{
		APIBaseURL:        upstream.URL,
		RequestTimeout:    5 * time.Second,
		DefaultGateway:    "paystack",
		SessionCookieName: "token",
		SessionTTL:        time.Hour,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := api.NewClient(cfg, log)
	state := session.NewStateManager()
	accounts := service.NewAccountService(client, repository.NewMemoryAccountCache(), log)

	srv, err := NewServer(cfg, log, Deps{
		API:      client,
		Accounts: accounts,
		Billing:  service.NewBillingService(client, state, service.NopJournal{}, cfg.RequestTimeout, log),
		Listener: service.NewPaymentListener(state, accounts, log),
		State:    state,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, target string, form url.Values, withSession bool) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if withSession {
		req.AddCookie(&http.Cookie{Name: "token", Value: testToken})
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestProtectedPagesRequireSessionCookie(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	for _, path := range []string{"/dashboard", "/dashboard/billing", "/generate", "/profile"} {
		rec := do(t, srv, http.MethodGet, path, nil, false)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Errorf("%s: got %d %q, want 303 /login", path, rec.Code, rec.Header().Get("Location"))
		}
	}
}

func TestTopUpRedirectsToGatewayWithoutTouchingBalance(t *testing.T) {
	backend := &fakeBackend{topUpBody: `{"url":"https://checkout.stripe.com/c/pay/cs_1"}`}
	backend.credits.Store(3)
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodGet, "/dashboard/billing?gateway=stripe", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("billing page status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "3 credits") {
		t.Fatalf("billing page does not show balance")
	}
	hits := backend.profileHits.Load()

	rec = do(t, srv, http.MethodPost, "/dashboard/billing/top-up", url.Values{"plan": {"starter"}, "gateway": {"stripe"}}, true)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://checkout.stripe.com/c/pay/cs_1" {
		t.Fatalf("Location = %q", got)
	}
	if backend.profileHits.Load() != hits {
		t.Fatalf("top-up refetched the account")
	}
	if got := backend.authorization(); got != "Bearer "+testToken {
		t.Fatalf("Authorization = %q", got)
	}
}

func TestTopUpWithoutRedirectTargetStaysOnBilling(t *testing.T) {
	backend := &fakeBackend{topUpBody: `{"reference":"abc"}`}
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodPost, "/dashboard/billing/top-up", url.Values{"plan": {"starter"}, "gateway": {"paystack"}}, true)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/dashboard/billing?gateway=paystack" {
		t.Fatalf("Location = %q", got)
	}

	rec = do(t, srv, http.MethodGet, "/dashboard/billing?gateway=paystack", nil, true)
	body := rec.Body.String()
	if !strings.Contains(body, "Could not initiate payment. Please try again.") {
		t.Fatalf("failure notification missing")
	}
	if strings.Contains(body, "Processing...") {
		t.Fatalf("plan still marked as processing")
	}
}

func TestTopUpRejectsInactivePlan(t *testing.T) {
	backend := &fakeBackend{topUpBody: `{"url":"https://checkout.stripe.com/x"}`}
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodPost, "/dashboard/billing/top-up", url.Values{"plan": {"legacy"}, "gateway": {"stripe"}}, true)
	if rec.Header().Get("Location") != "/dashboard/billing" {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
	if backend.topUpHits.Load() != 0 {
		t.Fatalf("inactive plan reached the backend")
	}
}

func TestPaymentSuccessRefetchesOnceAndStripsParam(t *testing.T) {
	backend := &fakeBackend{}
	backend.credits.Store(15)
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodGet, "/dashboard?payment=success", nil, true)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("got %d %q, want 303 /dashboard", rec.Code, rec.Header().Get("Location"))
	}
	if got := backend.profileHits.Load(); got != 1 {
		t.Fatalf("profile fetched %d times, want 1", got)
	}

	rec = do(t, srv, http.MethodGet, "/dashboard", nil, true)
	body := rec.Body.String()
	if !strings.Contains(body, "Payment successful! Your credits have been updated.") {
		t.Fatalf("success notification missing")
	}
	if !strings.Contains(body, "15 credits") {
		t.Fatalf("refreshed balance not shown")
	}
	if got := backend.profileHits.Load(); got != 1 {
		t.Fatalf("profile fetched %d times after render, want 1", got)
	}

	rec = do(t, srv, http.MethodGet, "/dashboard", nil, true)
	if strings.Contains(rec.Body.String(), "Payment successful!") {
		t.Fatalf("notification shown twice")
	}
}

func TestPaymentCancelledDoesNotRefetch(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodGet, "/dashboard?payment=cancelled&page=2", nil, true)
	if got := rec.Header().Get("Location"); got != "/dashboard?page=2" {
		t.Fatalf("Location = %q", got)
	}
	if got := backend.profileHits.Load(); got != 0 {
		t.Fatalf("profile fetched %d times, want 0", got)
	}

	rec = do(t, srv, http.MethodGet, "/dashboard", nil, true)
	if !strings.Contains(rec.Body.String(), "Payment was cancelled.") {
		t.Fatalf("cancel notification missing")
	}
}

func TestUnknownPaymentValueIsIgnored(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestServer(t, backend)

	do(t, srv, http.MethodGet, "/dashboard?payment=pending", nil, true)
	rec := do(t, srv, http.MethodGet, "/dashboard", nil, true)
	body := rec.Body.String()
	if strings.Contains(body, "Payment successful!") || strings.Contains(body, "Payment was cancelled.") {
		t.Fatalf("unexpected payment notification")
	}
}

func TestUnauthorizedEndsSession(t *testing.T) {
	backend := &fakeBackend{unauthorized: true}
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodGet, "/dashboard", nil, true)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("got %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("session cookie not cleared")
	}
}

func TestTopUpUnauthorizedEndsSession(t *testing.T) {
	backend := &fakeBackend{unauthorized: true}
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodPost, "/dashboard/billing/top-up", url.Values{"plan": {"starter"}, "gateway": {"stripe"}}, true)
	if rec.Header().Get("Location") != "/login" {
		t.Fatalf("Location = %q, want /login", rec.Header().Get("Location"))
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})

	rec := do(t, srv, http.MethodPost, "/login", url.Values{"email": {"ada@example.com"}, "password": {"secret"}}, false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("got %d %q, want 303 /dashboard", rec.Code, rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %v", cookies)
	}
	c := cookies[0]
	if c.Name != "token" || c.Value != testToken || !c.HttpOnly || c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected cookie %+v", c)
	}
}

func TestLoginShowsBackendMessage(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})

	rec := do(t, srv, http.MethodPost, "/login", url.Values{"email": {"ada@example.com"}, "password": {"wrong"}}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid credentials") {
		t.Fatalf("backend message not shown")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("failed login set a cookie")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})

	rec := do(t, srv, http.MethodPost, "/logout", nil, true)
	if rec.Header().Get("Location") != "/" {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %v", cookies)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(2 * time.Hour)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("any-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if got := tokenExpiry(signed, time.Hour, now); !got.Equal(exp) {
		t.Errorf("jwt expiry = %v, want %v", got, exp)
	}
	if got := tokenExpiry("opaque", time.Hour, now); !got.Equal(now.Add(time.Hour)) {
		t.Errorf("opaque expiry = %v", got)
	}
}

func TestProfileFromForm(t *testing.T) {
	form := url.Values{
		"fullName":           {" Ada "},
		"phoneNumber":        {"+234 800 000"},
		"linkedinUrl":        {"https://linkedin.com/in/ada"},
		"summary":            {"Backend engineer"},
		"skills":             {"Go, SQL,, Kubernetes "},
		"experienceRows":     {"2"},
		"exp-0-company":      {"Acme"},
		"exp-0-role":         {"Engineer"},
		"exp-0-highlights":   {"Shipped billing\r\n\r\nCut latency"},
		"exp-0-technologies": {"Go,Redis"},
		"educationRows":      {"1"},
		"certificationRows":  {"1"},
		"cert-0-title":       {"CKA"},
	}
	update := profileFromForm(form)
	if update.FullName != "Ada" {
		t.Errorf("FullName = %q", update.FullName)
	}
	if len(update.Skills) != 3 {
		t.Errorf("Skills = %v", update.Skills)
	}
	if len(update.WorkExperience) != 1 {
		t.Fatalf("WorkExperience = %+v", update.WorkExperience)
	}
	exp := update.WorkExperience[0]
	if len(exp.Highlights) != 2 || exp.Highlights[1] != "Cut latency" {
		t.Errorf("Highlights = %q", exp.Highlights)
	}
	if len(exp.TechnologiesUsed) != 2 {
		t.Errorf("TechnologiesUsed = %v", exp.TechnologiesUsed)
	}
	if len(update.Education) != 0 {
		t.Errorf("blank education row kept: %+v", update.Education)
	}
	if len(update.Certifications) != 1 {
		t.Errorf("Certifications = %+v", update.Certifications)
	}

	raw, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]string{
		"phoneNumber": "+234 800 000",
		"linkedinUrl": "https://linkedin.com/in/ada",
		"summary":     "Backend engineer",
	}
	for key, value := range want {
		if body[key] != value {
			t.Errorf("%s = %v, want %q", key, body[key], value)
		}
	}
	for _, key := range []string{"credits", "email", "_id"} {
		if _, ok := body[key]; ok {
			t.Errorf("profile update carries %q", key)
		}
	}
}

func TestSaveProfileSendsOnlyEditableFields(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodPost, "/profile", url.Values{
		"fullName":    {"Ada Lovelace"},
		"phoneNumber": {"+234"},
		"summary":     {"Analytical engines"},
	}, true)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/profile" {
		t.Fatalf("got %d %q, want 303 /profile", rec.Code, rec.Header().Get("Location"))
	}

	body := backend.profileUpdate()
	if body == nil {
		t.Fatalf("profile update not sent")
	}
	if body["phoneNumber"] != "+234" || body["summary"] != "Analytical engines" {
		t.Errorf("unexpected body %v", body)
	}
	for _, key := range []string{"credits", "email", "_id"} {
		if _, ok := body[key]; ok {
			t.Errorf("profile update carries %q", key)
		}
	}
}

func TestProfilePageReadsAccountOnce(t *testing.T) {
	backend := &fakeBackend{}
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodGet, "/profile", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := backend.profileHits.Load(); got != 1 {
		t.Fatalf("profile fetched %d times, want 1", got)
	}
	if !strings.Contains(rec.Body.String(), "555 0100") {
		t.Fatalf("phone number not loaded into the form")
	}

	do(t, srv, http.MethodGet, "/dashboard", nil, true)
	if got := backend.profileHits.Load(); got != 1 {
		t.Fatalf("dashboard refetched the account: %d reads", got)
	}
}

func TestPaymentReturnOnAnyProtectedPage(t *testing.T) {
	backend := &fakeBackend{}
	backend.credits.Store(20)
	srv := newTestServer(t, backend)

	rec := do(t, srv, http.MethodGet, "/dashboard/billing?gateway=stripe&payment=success", nil, true)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/dashboard/billing?gateway=stripe" {
		t.Fatalf("Location = %q", got)
	}
	if got := backend.profileHits.Load(); got != 1 {
		t.Fatalf("profile fetched %d times, want 1", got)
	}

	rec = do(t, srv, http.MethodGet, "/dashboard/billing?gateway=stripe", nil, true)
	body := rec.Body.String()
	if !strings.Contains(body, "Payment successful! Your credits have been updated.") {
		t.Fatalf("success notification missing")
	}
	if !strings.Contains(body, "20 credits") {
		t.Fatalf("refreshed balance not shown")
	}

	rec = do(t, srv, http.MethodGet, "/generate?payment=cancelled", nil, true)
	if got := rec.Header().Get("Location"); got != "/generate" {
		t.Fatalf("Location = %q", got)
	}
	if got := backend.profileHits.Load(); got != 1 {
		t.Fatalf("cancelled payment refetched the account")
	}
}
