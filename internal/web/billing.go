package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/cvtailor/internal/models"
	"github.com/digkill/cvtailor/internal/service"
	"github.com/digkill/cvtailor/internal/session"
)

const applicationsPerPage = 10

type dashboardPage struct {
	Applications []models.Application
	Meta         models.PageMeta
}

type planCard struct {
	Plan       models.CreditPlan
	Processing bool
}

type billingPage struct {
	Gateway  models.Gateway
	Gateways []models.Gateway
	Plans    []planCard
	Attempts []models.TopUpAttempt
}

// listenForPayment handles the gateway return trip on any protected page. The
// outcome is processed once for this navigation and the browser is sent to the
// same page without the parameter, so a reload cannot replay it.
func (s *Server) listenForPayment(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !r.URL.Query().Has(service.PaymentQueryParam) {
			next.ServeHTTP(w, r)
			return
		}
		navigationID := middleware.GetReqID(r.Context())
		s.listener.Process(r.Context(), tokenOf(r), navigationID, r.URL.Query())
		http.Redirect(w, r, service.WithoutPaymentParam(r.URL), http.StatusSeeOther)
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	data := dashboardPage{Meta: models.PageMeta{Page: page, LastPage: 1}}
	result, err := s.api.Applications(apiContext(r), page, applicationsPerPage)
	switch {
	case err == nil:
		data.Applications = result.Data
		data.Meta = result.Meta
	case s.expired(w, r, err):
		return
	default:
		s.log.Error("list applications", "page", page, "err", err)
		s.notify(r, session.LevelError, "Failed to fetch applications", "")
	}
	s.render(w, r, http.StatusOK, "dashboard", "Dashboard", data)
}

func (s *Server) handleBilling(w http.ResponseWriter, r *http.Request) {
	token := tokenOf(r)
	gateway, ok := models.ParseGateway(r.URL.Query().Get("gateway"))
	if !ok {
		gateway = s.defaultGateway
	}

	plans, err := s.billing.Plans(r.Context(), token)
	if err != nil {
		s.fail(w, r, err, "Failed to load pricing plans", "/dashboard")
		return
	}
	cards := make([]planCard, 0, len(plans))
	for _, plan := range plans {
		cards = append(cards, planCard{Plan: plan, Processing: s.billing.Processing(token, plan.Slug)})
	}

	attempts, err := s.billing.RecentAttempts(r.Context(), token, 5)
	if err != nil {
		s.log.Warn("load recent top-up attempts", "err", err)
	}

	s.render(w, r, http.StatusOK, "billing", "Billing", billingPage{
		Gateway:  gateway,
		Gateways: []models.Gateway{models.GatewayPaystack, models.GatewayStripe},
		Plans:    cards,
		Attempts: attempts,
	})
}

// handleTopUp sends the browser to the gateway checkout page. Credits are
// granted server-side; the balance is refreshed when the gateway sends the
// browser back with payment=success.
func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	planSlug := r.PostFormValue("plan")
	gateway := r.PostFormValue("gateway")
	back := "/dashboard/billing?gateway=" + url.QueryEscape(gateway)

	redirect, err := s.billing.RequestTopUp(r.Context(), tokenOf(r), planSlug, gateway)
	switch {
	case err == nil:
		http.Redirect(w, r, redirect, http.StatusSeeOther)
	case errors.Is(err, service.ErrTopUpInFlight):
		s.notify(r, session.LevelInfo, "Payment already in progress", "Please wait for the current request to finish.")
		http.Redirect(w, r, back, http.StatusSeeOther)
	case errors.Is(err, service.ErrInvalidGateway), errors.Is(err, service.ErrPlanUnavailable):
		s.log.Info("top-up rejected", "plan", planSlug, "gateway", gateway, "err", err)
		s.notify(r, session.LevelError, "Could not initiate payment. Please try again.", "")
		http.Redirect(w, r, "/dashboard/billing", http.StatusSeeOther)
	default:
		s.fail(w, r, err, "Could not initiate payment. Please try again.", back)
	}
}
