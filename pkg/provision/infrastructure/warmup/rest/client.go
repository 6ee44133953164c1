// Package rest implements port.WarmupService against the warmup provider's JSON API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	port "github.com/tigerroll/provisioner/pkg/provision/core/application/port"
	config "github.com/tigerroll/provisioner/pkg/provision/core/config"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// APIError is a non-2xx response from the warmup API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusCode implements exception.StatusCoder.
func (e *APIError) StatusCode() int {
	return e.Status
}

var _ exception.StatusCoder = (*APIError)(nil)

// Client is a rate-limited warmup API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client. requestsPerSecond <= 0 disables client-side limiting.
func NewClient(baseURL, apiKey string, requestsPerSecond float64, burst int, timeout time.Duration) *Client {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// NewClientFromConfig builds the client from the warmup section.
func NewClientFromConfig(cfg *config.Config) port.WarmupService {
	w := cfg.Provisioner.Warmup
	return NewClient(w.APIEndpoint, w.APIKey, w.RequestsPerSecond, w.Burst, time.Duration(w.TimeoutSeconds)*time.Second)
}

type loginPayload struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Secure   bool   `json:"secure"`
}

type connectRequest struct {
	Email     string               `json:"email"`
	FirstName string               `json:"first_name"`
	LastName  string               `json:"last_name"`
	SMTP      loginPayload         `json:"smtp"`
	IMAP      loginPayload         `json:"imap"`
	Warmup    model.WarmupSettings `json:"warmup"`
}

type connectResponse struct {
	ID        string               `json:"id"`
	WarmupKey string               `json:"warmup_key"`
	Warmup    model.WarmupSettings `json:"warmup"`
}

type campaignPayload struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	AccountIDs []string `json:"account_ids"`
}

func toLogin(l port.MailServerLogin) loginPayload {
	return loginPayload{Host: l.Host, Port: l.Port, Username: l.Username, Password: l.Password, Secure: l.Secure}
}

func (c *Client) Connect(ctx context.Context, mailbox port.WarmupMailbox) (*port.WarmupRegistration, error) {
	req := connectRequest{
		Email:     mailbox.Email,
		FirstName: mailbox.FirstName,
		LastName:  mailbox.LastName,
		SMTP:      toLogin(mailbox.SMTP),
		IMAP:      toLogin(mailbox.IMAP),
		Warmup:    mailbox.Settings,
	}
	var resp connectResponse
	if err := c.do(ctx, http.MethodPost, "/v1/mailboxes", req, &resp); err != nil {
		return nil, err
	}
	return &port.WarmupRegistration{ExternalID: resp.ID, WarmupKey: resp.WarmupKey, Settings: resp.Warmup}, nil
}

func (c *Client) UpdateSettings(ctx context.Context, externalID string, patch model.WarmupSettingsPatch) (*model.WarmupSettings, error) {
	var settings model.WarmupSettings
	if err := c.do(ctx, http.MethodPatch, "/v1/mailboxes/"+url.PathEscape(externalID)+"/warmup", patch, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (c *Client) Disconnect(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/mailboxes/"+url.PathEscape(externalID), nil, nil)
}

func (c *Client) ListCampaigns(ctx context.Context) ([]port.WarmupCampaign, error) {
	var resp struct {
		Campaigns []campaignPayload `json:"campaigns"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/campaigns", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]port.WarmupCampaign, 0, len(resp.Campaigns))
	for _, cp := range resp.Campaigns {
		out = append(out, port.WarmupCampaign{ID: cp.ID, Name: cp.Name, AccountIDs: cp.AccountIDs})
	}
	return out, nil
}

func (c *Client) AddToCampaign(ctx context.Context, campaignID, externalID string) error {
	body := map[string]string{"account_id": externalID}
	return c.do(ctx, http.MethodPost, "/v1/campaigns/"+url.PathEscape(campaignID)+"/accounts", body, nil)
}

func (c *Client) RemoveFromCampaign(ctx context.Context, campaignID, externalID string) error {
	return c.do(ctx, http.MethodDelete,
		"/v1/campaigns/"+url.PathEscape(campaignID)+"/accounts/"+url.PathEscape(externalID), nil, nil)
}

// do waits for a limiter token, sends the request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return err
	}
	if len(data) > maxResponseBytes {
		return fmt.Errorf("%s %s response exceeds %d bytes", method, path, maxResponseBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// newAPIError builds an APIError from an error body of the form {"error": "..."} or
// {"message": "..."}. Statuses with a fixed meaning are prefixed so the classifier
// recognises them regardless of the provider's wording.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Error
	if msg == "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized:
		msg = "unauthorized: " + msg
	case http.StatusConflict:
		msg = "mailbox already connected: " + msg
	case http.StatusTooManyRequests:
		msg = "rate limit exceeded: " + msg
	}
	return &APIError{Status: status, Message: msg}
}

var _ port.WarmupService = (*Client)(nil)
