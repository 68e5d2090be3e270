package transit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tsig-uy/mapgate/internal/core/domain"
)

const maxResponseBytes = 8 << 20

// Client talks to the external line API: route validation, line
// persistence and the anonymous search surface. Domain rejections
// (4xx with a message payload) become *domain.RemoteError so the
// message reaches the user verbatim.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a line API client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	Points []domain.RoutePoint `json:"points"`
}

type validateResponse struct {
	Geometry *domain.GeoLineString `json:"geometry"`
}

// ValidateRoute submits the drafted points for validation and returns
// the computed route geometry.
func (c *Client) ValidateRoute(ctx context.Context, points []domain.RoutePoint) (*domain.GeoLineString, error) {
	var out validateResponse
	if err := c.post(ctx, "/routes/validate", "routing", validateRequest{Points: points}, &out); err != nil {
		return nil, err
	}
	if out.Geometry == nil {
		return nil, &domain.RemoteError{Service: "routing", Message: "validation returned no geometry"}
	}
	return out.Geometry, nil
}

type saveRequest struct {
	Description  string                `json:"description"`
	Company      string                `json:"company"`
	Observations string                `json:"observations,omitempty"`
	Points       []domain.RoutePoint   `json:"points"`
	Geometry     *domain.GeoLineString `json:"geometry"`
}

// SaveRoute persists a validated route as a new line.
func (c *Client) SaveRoute(ctx context.Context, meta domain.RouteMetadata, points []domain.RoutePoint, geometry *domain.GeoLineString) (*domain.Line, error) {
	var line domain.Line
	body := saveRequest{
		Description:  meta.Description,
		Company:      meta.Company,
		Observations: meta.Observations,
		Points:       points,
		Geometry:     geometry,
	}
	if err := c.post(ctx, "/lines", "lines", body, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

// SearchByCompany lists the lines operated by one company.
func (c *Client) SearchByCompany(ctx context.Context, company string) ([]domain.Line, error) {
	q := url.Values{"company": {company}}
	var lines []domain.Line
	if err := c.get(ctx, "/lines", q, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// SearchBySchedule lists the lines with departures inside a
// time-of-day window.
func (c *Client) SearchBySchedule(ctx context.Context, window domain.ScheduleWindow) ([]domain.Line, error) {
	q := url.Values{"from": {window.From}, "to": {window.To}}
	var lines []domain.Line
	if err := c.get(ctx, "/lines/schedule", q, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// SearchByOriginDestination lists the lines connecting two stops.
func (c *Client) SearchByOriginDestination(ctx context.Context, originID, destinationID int) ([]domain.Line, error) {
	q := url.Values{
		"origin":      {strconv.Itoa(originID)},
		"destination": {strconv.Itoa(destinationID)},
	}
	var lines []domain.Line
	if err := c.get(ctx, "/lines/search", q, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// DeleteStop removes a stop by name.
func (c *Client) DeleteStop(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/stops/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lines api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return remoteFailure("lines", resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, service string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, service, out)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return c.do(req, "lines", out)
}

func (c *Client) do(req *http.Request, service string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s api: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return remoteFailure(service, resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s api body: %w", service, err)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s api decode: %w", service, err)
	}
	return nil
}

// remoteFailure extracts the API's message payload. Client errors carry
// a user-facing message; anything else gets a generic one.
func remoteFailure(service string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(raw, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}
	return &domain.RemoteError{Service: service, Message: msg}
}
