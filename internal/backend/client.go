package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tagwatch/console-sync/internal/model"
)

// TokenSource yields the current bearer token; empty means anonymous.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Client talks to the external REST backend. It never retries; callers
// decide whether a failure is background or user-facing.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) ListCameras(ctx context.Context) ([]model.Camera, error) {
	var out []model.Camera
	query := url.Values{"type": {"camera"}}
	if err := c.do(ctx, http.MethodGet, "/devices", query, nil, &out); err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	return out, nil
}

// DeviceEvents returns up to limit events for a device, newest first.
func (c *Client) DeviceEvents(ctx context.Context, deviceID string, limit int) ([]model.DeviceEvent, error) {
	var out []model.DeviceEvent
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	path := "/devices/" + url.PathEscape(deviceID) + "/events"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, fmt.Errorf("device %s events: %w", deviceID, err)
	}
	return out, nil
}

func (c *Client) ListGateways(ctx context.Context) ([]model.Gateway, error) {
	var out []model.Gateway
	if err := c.do(ctx, http.MethodGet, "/gateways", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list gateways: %w", err)
	}
	return out, nil
}

func (c *Client) MyIncidents(ctx context.Context, limit int) ([]model.Incident, error) {
	var out []model.Incident
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if err := c.do(ctx, http.MethodGet, "/incidents/my", query, nil, &out); err != nil {
		return nil, fmt.Errorf("my incidents: %w", err)
	}
	return out, nil
}

func (c *Client) CreateIncident(ctx context.Context, in model.NewIncident) (model.Incident, error) {
	var out model.Incident
	if err := c.do(ctx, http.MethodPost, "/incidents", nil, in, &out); err != nil {
		return model.Incident{}, fmt.Errorf("create incident: %w", err)
	}
	return out, nil
}

// IncidentMessages fetches a timeline page. A nil afterID requests the
// initial page; otherwise only messages with a greater id are returned.
func (c *Client) IncidentMessages(ctx context.Context, incidentID int64, limit int, afterID *int64) ([]model.IncidentMessage, error) {
	var out []model.IncidentMessage
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if afterID != nil {
		query.Set("after_id", strconv.FormatInt(*afterID, 10))
	}
	path := "/incidents/" + strconv.FormatInt(incidentID, 10) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, fmt.Errorf("incident %d messages: %w", incidentID, err)
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, incidentID int64, in model.NewMessage) (model.IncidentMessage, error) {
	var out model.IncidentMessage
	path := "/incidents/" + strconv.FormatInt(incidentID, 10) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, nil, in, &out); err != nil {
		return model.IncidentMessage{}, fmt.Errorf("send message to incident %d: %w", incidentID, err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dst any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(c.tokens.Token()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var envelope struct {
			Detail json.RawMessage `json:"detail"`
		}
		detail := ""
		if err := json.Unmarshal(raw, &envelope); err == nil {
			detail = flattenDetail(envelope.Detail)
		}
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}

	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
