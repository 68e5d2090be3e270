package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tsig-uy/mapgate/internal/core/domain"
)

const maxResponseBytes = 8 << 20

// Client fetches road-following preview polylines from an OSRM server.
// The preview is a rendering aid while drafting and is never persisted.
type Client struct {
	baseURL    string
	profile    string
	httpClient *http.Client
}

// NewClient builds an OSRM routing client.
func NewClient(baseURL, profile string, timeout time.Duration) *Client {
	if profile == "" {
		profile = "driving"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    profile,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the driving path through the waypoints in order.
func (c *Client) Route(ctx context.Context, waypoints []domain.GeoPoint) (*domain.GeoLineString, error) {
	if len(waypoints) < 2 {
		return nil, errors.New("a route preview needs at least two waypoints")
	}

	coords := make([]string, len(waypoints))
	for i, p := range waypoints {
		coords[i] = strconv.FormatFloat(p.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
	}
	u := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=geojson",
		c.baseURL, c.profile, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("osrm body: %w", err)
	}

	var out osrmResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("osrm decode: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, &domain.RemoteError{Service: "routing", Message: "no route found between the waypoints"}
	}

	return &domain.GeoLineString{Coordinates: out.Routes[0].Geometry.Coordinates}, nil
}
