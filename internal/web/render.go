package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/cvtailor/internal/models"
	"github.com/digkill/cvtailor/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"landing",
	"login",
	"signup",
	"dashboard",
	"billing",
	"application",
	"generate",
	"profile",
}

type pageTemplate struct {
	tmpl *template.Template
}

var templateFuncs = template.FuncMap{
	"price": func(plan models.CreditPlan, g models.Gateway) string {
		return plan.Price(g)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"join": strings.Join,
	"lines": func(items []string) string {
		return strings.Join(items, "\n")
	},
	"add": func(a, b int) int { return a + b },
}

func loadPages() (map[string]*pageTemplate, error) {
	pages := make(map[string]*pageTemplate, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = &pageTemplate{tmpl: tmpl}
	}
	return pages, nil
}

type view struct {
	Title         string
	Authenticated bool
	Account       *models.Account
	Flashes       []session.Flash
	Data          any
}

// render writes a full page. On protected pages the layout shows the cached
// credit balance, loading it on first use.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.log.Error("unknown page", "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	v := view{Title: title, Data: data}
	if token := tokenOf(r); token != "" {
		account, err := s.accounts.Current(r.Context(), token)
		if err != nil {
			if s.expired(w, r, err) {
				return
			}
			s.log.Warn("load account for layout", "err", err)
		}
		v.Authenticated = true
		v.Account = account
		v.Flashes = s.state.Drain(session.Key(token))
	}

	var buf bytes.Buffer
	if err := tmpl.tmpl.Execute(&buf, v); err != nil {
		s.log.Error("render page", "page", page, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
