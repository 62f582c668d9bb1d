package web

import (
	"net/http"
	"strings"

	"github.com/digkill/cvtailor/internal/api"
)

type landingPage struct {
	SignedIn bool
}

type authForm struct {
	FullName   string
	Email      string
	Error      string
	Registered bool
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	_, err := r.Cookie(s.cfg.SessionCookieName)
	s.render(w, r, http.StatusOK, "landing", "CV Tailor", landingPage{SignedIn: err == nil})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	form := authForm{Registered: r.URL.Query().Get("registered") == "1"}
	s.render(w, r, http.StatusOK, "login", "Log in", form)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := authForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	password := r.PostFormValue("password")
	if form.Email == "" || password == "" {
		form.Error = "Email and password are required."
		s.render(w, r, http.StatusUnprocessableEntity, "login", "Log in", form)
		return
	}

	token, err := s.api.Login(r.Context(), api.LoginRequest{Email: form.Email, Password: password})
	if err != nil {
		s.log.Info("login failed", "err", err)
		form.Error = api.UserMessage(err)
		if form.Error == "" {
			form.Error = "Login failed. Please try again."
		}
		s.render(w, r, http.StatusUnauthorized, "login", "Log in", form)
		return
	}

	s.startSession(w, token)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "signup", "Create account", authForm{})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	form := authForm{
		FullName: strings.TrimSpace(r.PostFormValue("fullName")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
	}
	password := r.PostFormValue("password")
	if form.FullName == "" || form.Email == "" || password == "" {
		form.Error = "All fields are required."
		s.render(w, r, http.StatusUnprocessableEntity, "signup", "Create account", form)
		return
	}

	err := s.api.Signup(r.Context(), api.SignupRequest{FullName: form.FullName, Email: form.Email, Password: password})
	if err != nil {
		s.log.Info("signup failed", "err", err)
		form.Error = api.UserMessage(err)
		if form.Error == "" {
			form.Error = "Signup failed. Please try again."
		}
		s.render(w, r, http.StatusUnprocessableEntity, "signup", "Create account", form)
		return
	}
	http.Redirect(w, r, "/login?registered=1", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(s.cfg.SessionCookieName); err == nil {
		token = cookie.Value
	}
	s.endSession(w, r, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
