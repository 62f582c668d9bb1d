package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/digkill/cvtailor/internal/models"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("empty access_token in login response")
	}
	return resp.AccessToken, nil
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	return c.sendJSON(ctx, http.MethodPost, "/auth/signup", req, nil)
}

func (c *Client) Profile(ctx context.Context) (*models.Account, error) {
	var account models.Account
	if err := c.getJSON(ctx, "/profile", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) error {
	return c.sendJSON(ctx, http.MethodPatch, "/profile/basic", update, nil)
}

func (c *Client) Plans(ctx context.Context) ([]models.CreditPlan, error) {
	var plans []models.CreditPlan
	if err := c.getJSON(ctx, "/payment/plans", nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// TopUp asks the backend to open a gateway checkout session.
func (c *Client) TopUp(ctx context.Context, req models.TopUpRequest, idempotencyKey string) (models.TopUpResponse, error) {
	opts := requestOptions{body: req}
	if idempotencyKey != "" {
		opts.headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	raw, err := c.send(ctx, http.MethodPost, "/payment/top-up", opts)
	if err != nil {
		return models.TopUpResponse{}, err
	}
	var resp models.TopUpResponse
	if err := decode(raw, &resp, "/payment/top-up"); err != nil {
		return models.TopUpResponse{}, err
	}
	return resp, nil
}

func (c *Client) Applications(ctx context.Context, page, limit int) (*models.Page[models.Application], error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var result models.Page[models.Application]
	if err := c.getJSON(ctx, "/application", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Application(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := c.getJSON(ctx, "/application/"+url.PathEscape(id), nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) UpdateApplication(ctx context.Context, app models.Application) error {
	return c.sendJSON(ctx, http.MethodPatch, "/application/"+url.PathEscape(app.ID), app, nil)
}

func (c *Client) UpdateApplicationStatus(ctx context.Context, id string, status models.ApplicationStatus) error {
	body := map[string]string{"status": string(status)}
	return c.sendJSON(ctx, http.MethodPatch, "/application/"+url.PathEscape(id)+"/status", body, nil)
}

func (c *Client) DeleteApplication(ctx context.Context, id string) error {
	_, err := c.send(ctx, http.MethodDelete, "/application/"+url.PathEscape(id), requestOptions{})
	return err
}

// Generate submits a job posting. duplicate reports that the backend returned an
// application generated earlier for the same posting.
func (c *Client) Generate(ctx context.Context, input models.GenerateInput) (app *models.Application, duplicate bool, err error) {
	raw, err := c.send(ctx, http.MethodPost, "/application/generate", requestOptions{body: input})
	if err != nil {
		return nil, false, err
	}

	var wrapped struct {
		IsDuplicate bool            `json:"isDuplicate"`
		Data        json.RawMessage `json:"data"`
	}
	if err := decode(raw, &wrapped, "/application/generate"); err != nil {
		return nil, false, err
	}

	payload := raw
	if wrapped.IsDuplicate && len(wrapped.Data) > 0 {
		payload = wrapped.Data
	}
	var result models.Application
	if err := decode(payload, &result, "/application/generate"); err != nil {
		return nil, false, err
	}
	return &result, wrapped.IsDuplicate, nil
}

// DownloadPDF renders the application with the given template and returns the PDF bytes.
func (c *Client) DownloadPDF(ctx context.Context, id, template string) ([]byte, error) {
	query := url.Values{}
	if template != "" {
		query.Set("template", template)
	}
	opts := requestOptions{
		query:   query,
		headers: map[string]string{"Accept": "application/pdf"},
	}
	return c.send(ctx, http.MethodGet, "/application/download/"+url.PathEscape(id), opts)
}
