package web

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/digkill/cvtailor/internal/models"
	"github.com/digkill/cvtailor/internal/session"
)

// maxFormRows bounds the repeated sections read from the profile form.
const maxFormRows = 50

type profilePage struct {
	Account *models.Account
}

// handleProfile loads the editor from a fresh /profile read, which also
// replaces the cached snapshot the layout shows.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	account, err := s.accounts.Refresh(r.Context(), tokenOf(r))
	if err != nil {
		s.fail(w, r, err, "Failed to load profile data", "/dashboard")
		return
	}
	s.render(w, r, http.StatusOK, "profile", "Master Profile", profilePage{Account: account})
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	update := profileFromForm(r.PostForm)
	if err := s.api.UpdateProfile(apiContext(r), update); err != nil {
		s.fail(w, r, err, "Failed to save changes.", "/profile")
		return
	}
	if _, err := s.accounts.Refresh(r.Context(), tokenOf(r)); err != nil {
		s.log.Warn("refresh account after profile update", "err", err)
	}
	s.notify(r, session.LevelSuccess, "Profile updated successfully!", "")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// profileFromForm reads the profile editor. Skills and technologies are comma
// separated, highlights one per line. Rows left entirely blank are dropped.
func profileFromForm(form url.Values) models.ProfileUpdate {
	get := func(key string) string { return strings.TrimSpace(form.Get(key)) }

	update := models.ProfileUpdate{
		FullName:    get("fullName"),
		PhoneNumber: get("phoneNumber"),
		LinkedInURL: get("linkedinUrl"),
		Summary:     get("summary"),
		Skills:      splitList(form.Get("skills"), ","),
	}

	for i := 0; i < rowCount(form, "experienceRows"); i++ {
		prefix := "exp-" + strconv.Itoa(i) + "-"
		exp := models.Experience{
			Company:          get(prefix + "company"),
			Role:             get(prefix + "role"),
			StartDate:        get(prefix + "startDate"),
			EndDate:          get(prefix + "endDate"),
			Highlights:       splitList(form.Get(prefix+"highlights"), "\n"),
			TechnologiesUsed: splitList(form.Get(prefix+"technologies"), ","),
		}
		if exp.Company == "" && exp.Role == "" && len(exp.Highlights) == 0 {
			continue
		}
		update.WorkExperience = append(update.WorkExperience, exp)
	}

	for i := 0; i < rowCount(form, "educationRows"); i++ {
		prefix := "edu-" + strconv.Itoa(i) + "-"
		edu := models.Education{
			Degree: get(prefix + "degree"),
			School: get(prefix + "school"),
			Year:   get(prefix + "year"),
		}
		if edu == (models.Education{}) {
			continue
		}
		update.Education = append(update.Education, edu)
	}

	for i := 0; i < rowCount(form, "certificationRows"); i++ {
		prefix := "cert-" + strconv.Itoa(i) + "-"
		cert := models.Certification{
			Title:  get(prefix + "title"),
			Issuer: get(prefix + "issuer"),
			Date:   get(prefix + "date"),
		}
		if cert == (models.Certification{}) {
			continue
		}
		update.Certifications = append(update.Certifications, cert)
	}
	return update
}

func rowCount(form url.Values, key string) int {
	n, err := strconv.Atoi(form.Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return min(n, maxFormRows)
}

func splitList(raw, sep string) []string {
	var items []string
	for _, part := range strings.Split(raw, sep) {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}
