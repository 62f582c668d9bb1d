package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/cvtailor/internal/api"
	"github.com/digkill/cvtailor/internal/models"
	"github.com/digkill/cvtailor/internal/session"
	"github.com/digkill/cvtailor/internal/storage"
)

var resumeTemplates = []string{"modern", "corporate"}

type applicationPage struct {
	App       *models.Application
	Statuses  []models.ApplicationStatus
	Templates []string
	Template  string
	CanExport bool
}

type generatePage struct {
	Input     models.GenerateInput
	Result    *models.Application
	Duplicate bool
}

func applicationPath(id string) string {
	return "/dashboard/applications/" + id
}

func pickTemplate(raw string) string {
	for _, t := range resumeTemplates {
		if t == raw {
			return t
		}
	}
	return resumeTemplates[0]
}

func (s *Server) handleApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.api.Application(apiContext(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "Failed to load workspace data", "/dashboard")
		return
	}
	s.render(w, r, http.StatusOK, "application", app.JobTitle, applicationPage{
		App:       app,
		Statuses:  models.ApplicationStatuses,
		Templates: resumeTemplates,
		Template:  pickTemplate(r.URL.Query().Get("template")),
		CanExport: s.exporter != nil,
	})
}

// handleSaveApplication applies the editor form on top of the stored
// application and writes it back.
func (s *Server) handleSaveApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	ctx := apiContext(r)
	app, err := s.api.Application(ctx, id)
	if err != nil {
		s.fail(w, r, err, "Failed to save changes", applicationPath(id))
		return
	}

	cv := &app.GeneratedCVData
	cv.ProfessionalSummary = strings.TrimSpace(r.PostFormValue("professionalSummary"))
	cv.RelevantSkills = splitList(r.PostFormValue("relevantSkills"), ",")
	for i := range cv.RefinedExperience {
		field := "highlights-" + strconv.Itoa(i)
		if _, ok := r.PostForm[field]; ok {
			cv.RefinedExperience[i].Highlights = splitList(r.PostFormValue(field), "\n")
		}
	}
	app.GeneratedCoverLetter = strings.TrimSpace(r.PostFormValue("coverLetter"))

	if err := s.api.UpdateApplication(ctx, *app); err != nil {
		s.fail(w, r, err, "Failed to save changes", applicationPath(id))
		return
	}
	s.notify(r, session.LevelSuccess, "Changes saved successfully", "")
	http.Redirect(w, r, applicationPath(id), http.StatusSeeOther)
}

func (s *Server) handleApplicationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := models.ParseApplicationStatus(r.FormValue("status"))
	if err != nil {
		s.notify(r, session.LevelError, "Failed to update status", "")
		http.Redirect(w, r, applicationPath(id), http.StatusSeeOther)
		return
	}
	if err := s.api.UpdateApplicationStatus(apiContext(r), id, status); err != nil {
		s.fail(w, r, err, "Failed to update status", applicationPath(id))
		return
	}
	s.notify(r, session.LevelSuccess, fmt.Sprintf("Status updated to %s", status), "")
	http.Redirect(w, r, applicationPath(id), http.StatusSeeOther)
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	if err := s.api.DeleteApplication(apiContext(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err, "Failed to delete application", "/dashboard")
		return
	}
	s.notify(r, session.LevelSuccess, "Application deleted", "")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	template := pickTemplate(r.URL.Query().Get("template"))
	ctx := apiContext(r)

	app, err := s.api.Application(ctx, id)
	if err != nil {
		s.fail(w, r, err, "Failed to download PDF. Please try again.", applicationPath(id))
		return
	}
	pdf, err := s.api.DownloadPDF(ctx, id, template)
	if err != nil {
		s.fail(w, r, err, "Failed to download PDF. Please try again.", applicationPath(id)+"?template="+template)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.ExportFilename(app.CompanyName)))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

// handleExport renders the PDF and publishes it to object storage so it can be
// shared by link.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	template := pickTemplate(r.FormValue("template"))
	back := applicationPath(id) + "?template=" + template
	if s.exporter == nil {
		s.notify(r, session.LevelError, "Export is not available", "Document storage is not configured.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	ctx := apiContext(r)
	app, err := s.api.Application(ctx, id)
	if err != nil {
		s.fail(w, r, err, "Export failed", back)
		return
	}
	pdf, err := s.api.DownloadPDF(ctx, id, template)
	if err != nil {
		s.fail(w, r, err, "Export failed", back)
		return
	}
	link, err := s.exporter.Upload(r.Context(), pdf, "application/pdf", storage.ExportFilename(app.CompanyName))
	if err != nil {
		s.log.Error("export application", "application", id, "err", err)
		s.notify(r, session.LevelError, "Export failed", "Please try again.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	s.log.Info("application exported", "application", id, "template", template)
	s.notify(r, session.LevelSuccess, "Export ready", link)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (s *Server) handleGenerateForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "generate", "CV Generator", generatePage{})
}

// handleGenerate submits the posting and shows the result inline. The balance
// shown in the layout is refetched since a generation consumes a credit.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	data := generatePage{Input: models.GenerateInput{
		JobTitle:       strings.TrimSpace(r.PostFormValue("jobTitle")),
		CompanyName:    strings.TrimSpace(r.PostFormValue("companyName")),
		JobDescription: strings.TrimSpace(r.PostFormValue("jobDescription")),
	}}
	if data.Input.JobTitle == "" || data.Input.CompanyName == "" || data.Input.JobDescription == "" {
		s.notify(r, session.LevelError, "Generation Failed", "Job title, company and description are required.")
		s.render(w, r, http.StatusUnprocessableEntity, "generate", "CV Generator", data)
		return
	}

	app, duplicate, err := s.api.Generate(apiContext(r), data.Input)
	if err != nil {
		if s.expired(w, r, err) {
			return
		}
		s.log.Error("generate application", "company", data.Input.CompanyName, "err", err)
		message := "Check your credits and try again."
		if m := api.UserMessage(err); m != "" {
			message = m
		}
		s.notify(r, session.LevelError, "Generation Failed", message)
		s.render(w, r, http.StatusOK, "generate", "CV Generator", data)
		return
	}

	data.Result = app
	data.Duplicate = duplicate
	if duplicate {
		s.notify(r, session.LevelInfo, "Existing CV Found", "You've already optimized for this job. Loading previous version.")
	} else {
		s.notify(r, session.LevelSuccess, "Resume Optimized!", "Your CV has been tailored to this job description.")
		if _, err := s.accounts.Refresh(r.Context(), tokenOf(r)); err != nil {
			s.log.Warn("refresh credits after generation", "err", err)
		}
	}
	s.render(w, r, http.StatusOK, "generate", "CV Generator", data)
}
