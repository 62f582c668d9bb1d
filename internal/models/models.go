package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Gateway string

const (
	GatewayStripe   Gateway = "stripe"
	GatewayPaystack Gateway = "paystack"
)

// ParseGateway accepts exactly the two supported gateways.
func ParseGateway(raw string) (Gateway, bool) {
	switch Gateway(strings.ToLower(strings.TrimSpace(raw))) {
	case GatewayStripe:
		return GatewayStripe, true
	case GatewayPaystack:
		return GatewayPaystack, true
	default:
		return "", false
	}
}

func (g Gateway) Currency() string {
	if g == GatewayPaystack {
		return "NGN"
	}
	return "USD"
}

func (g Gateway) Label() string {
	if g == GatewayPaystack {
		return "Nigeria (NGN)"
	}
	return "International (USD)"
}

type CreditPlan struct {
	ID            string  `json:"_id"`
	Slug          string  `json:"slug"`
	Name          string  `json:"name"`
	Credits       int     `json:"credits"`
	PriceNGN      float64 `json:"priceNgn"`
	PriceUSD      float64 `json:"priceUsd"`
	StripePriceID string  `json:"stripePriceId,omitempty"`
	IsActive      bool    `json:"isActive"`
}

// Price formats the plan price in the currency charged by the gateway.
func (p CreditPlan) Price(g Gateway) string {
	if g == GatewayPaystack {
		return "₦" + groupThousands(p.PriceNGN)
	}
	return "$" + strconv.FormatFloat(p.PriceUSD, 'f', -1, 64)
}

func groupThousands(v float64) string {
	whole := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// Account is the /profile record. Credits is server-authoritative.
type Account struct {
	ID             string          `json:"_id"`
	FullName       string          `json:"fullName"`
	Email          string          `json:"email"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	LinkedInURL    string          `json:"linkedinUrl,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Skills         []string        `json:"skills,omitempty"`
	WorkExperience []Experience    `json:"workExperience,omitempty"`
	Education      []Education     `json:"education,omitempty"`
	Certifications []Certification `json:"certifications,omitempty"`
	Credits        int             `json:"credits"`
}

// ProfileUpdate is the body of PATCH /profile/basic. Identity, email and
// credits are not editable and so have no field here.
type ProfileUpdate struct {
	FullName       string          `json:"fullName"`
	PhoneNumber    string          `json:"phoneNumber"`
	LinkedInURL    string          `json:"linkedinUrl"`
	Summary        string          `json:"summary"`
	Skills         []string        `json:"skills"`
	WorkExperience []Experience    `json:"workExperience"`
	Education      []Education     `json:"education"`
	Certifications []Certification `json:"certifications"`
}

type PaymentStatus string

const (
	PaymentNone      PaymentStatus = ""
	PaymentSuccess   PaymentStatus = "success"
	PaymentCancelled PaymentStatus = "cancelled"
)

// ParsePaymentStatus maps the return-trip query value; anything unknown is PaymentNone.
func ParsePaymentStatus(raw string) PaymentStatus {
	switch PaymentStatus(raw) {
	case PaymentSuccess:
		return PaymentSuccess
	case PaymentCancelled:
		return PaymentCancelled
	default:
		return PaymentNone
	}
}

// TopUpRequest is the body of POST /payment/top-up.
type TopUpRequest struct {
	Gateway Gateway `json:"gateway"`
	PlanID  string  `json:"planId"`
}

// TopUpResponse carries the gateway-specific redirect field. Paystack answers with
// authorization_url, Stripe with url.
type TopUpResponse struct {
	AuthorizationURL string `json:"authorization_url,omitempty"`
	URL              string `json:"url,omitempty"`
}

// RedirectURL normalizes both aliases into one value.
func (r TopUpResponse) RedirectURL() (string, bool) {
	if u := strings.TrimSpace(r.AuthorizationURL); u != "" {
		return u, true
	}
	if u := strings.TrimSpace(r.URL); u != "" {
		return u, true
	}
	return "", false
}

type ApplicationStatus string

const (
	StatusGenerated    ApplicationStatus = "generated"
	StatusApplied      ApplicationStatus = "applied"
	StatusInterviewing ApplicationStatus = "interviewing"
	StatusOffered      ApplicationStatus = "offered"
	StatusHired        ApplicationStatus = "hired"
	StatusRejected     ApplicationStatus = "rejected"
)

var ApplicationStatuses = []ApplicationStatus{
	StatusGenerated, StatusApplied, StatusInterviewing, StatusOffered, StatusHired, StatusRejected,
}

func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	for _, s := range ApplicationStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown application status %q", raw)
}

type Experience struct {
	Company          string   `json:"company"`
	Role             string   `json:"role"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	Highlights       []string `json:"highlights"`
	TechnologiesUsed []string `json:"technologiesUsed,omitempty"`
}

type Education struct {
	Degree string `json:"degree,omitempty"`
	School string `json:"school,omitempty"`
	Year   string `json:"year,omitempty"`
}

type Certification struct {
	Title  string `json:"title,omitempty"`
	Issuer string `json:"issuer,omitempty"`
	Date   string `json:"date,omitempty"`
}

type CVData struct {
	ProfessionalSummary string          `json:"professionalSummary"`
	RefinedExperience   []Experience    `json:"refinedExperience"`
	RelevantSkills      []string        `json:"relevantSkills"`
	CoverLetter         string          `json:"coverLetter,omitempty"`
	Education           []Education     `json:"education,omitempty"`
	Certifications      []Certification `json:"certifications,omitempty"`
}

type Application struct {
	ID                   string    `json:"_id"`
	JobTitle             string    `json:"jobTitle"`
	CompanyName          string    `json:"companyName"`
	CreatedAt            time.Time `json:"createdAt"`
	GeneratedCVData      CVData    `json:"generatedCvData"`
	GeneratedCoverLetter string    `json:"generatedCoverLetter"`
	Status               string    `json:"status"`
	RawJobDescription    string    `json:"rawJobDescription"`
}

type PageMeta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	LastPage int `json:"lastPage"`
}

type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

// GenerateInput is submitted to the generation service.
type GenerateInput struct {
	JobTitle       string `json:"title"`
	CompanyName    string `json:"company"`
	JobDescription string `json:"description"`
}

// TopUpAttempt is the client-side audit record of one top-up attempt.
type TopUpAttempt struct {
	ID         int64
	AttemptID  string
	SessionKey string
	PlanSlug   string
	Gateway    Gateway
	Status     string
	Detail     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
