package wms

import (
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

const maxResponseBytes = 4 << 20

// Client issues WMS GetFeatureInfo requests against a GeoServer-style
// endpoint and parses the GeoJSON feature collection it returns.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	layerTypes map[string]domain.FeatureType
}

// NewClient builds a feature-info client. layerTypes maps each
// queryable layer name to the feature kind its results are tagged with;
// unmapped layers fall back to FeatureStop.
func NewClient(baseURL, version string, timeout time.Duration, layerTypes map[string]domain.FeatureType) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		version:    version,
		httpClient: &http.Client{Timeout: timeout},
		layerTypes: layerTypes,
	}
}

// GetFeatureInfo executes one query. Whatever the server reports under
// the click comes back as candidates; an empty collection, or a body
// that is not a feature collection at all, yields an empty slice.
func (c *Client) GetFeatureInfo(ctx context.Context, req *domain.FeatureQueryRequest) ([]domain.FeatureCandidate, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("wms url: %w", err)
	}
	u.RawQuery = c.queryParams(req).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", req.Format)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wms status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("wms body: %w", err)
	}

	return c.parseCollection(req.Layer, body), nil
}

func (c *Client) queryParams(req *domain.FeatureQueryRequest) url.Values {
	q := url.Values{}
	q.Set("SERVICE", "WMS")
	q.Set("VERSION", c.version)
	q.Set("REQUEST", "GetFeatureInfo")
	q.Set("LAYERS", req.Layer)
	q.Set("QUERY_LAYERS", req.Layer)
	q.Set("STYLES", req.Style)
	q.Set("BBOX", fmt.Sprintf("%f,%f,%f,%f", req.BBox[0], req.BBox[1], req.BBox[2], req.BBox[3]))
	q.Set("WIDTH", strconv.Itoa(req.Size.Width))
	q.Set("HEIGHT", strconv.Itoa(req.Size.Height))
	q.Set("INFO_FORMAT", req.Format)
	q.Set("BUFFER", strconv.Itoa(req.Tolerance))
	q.Set("FEATURE_COUNT", strconv.Itoa(req.MaxFeatures))
	if req.CQLFilter != "" {
		q.Set("CQL_FILTER", req.CQLFilter)
	}

	// 1.3.0 renamed SRS to CRS and the click position to I/J.
	if c.version == "1.3.0" {
		q.Set("CRS", req.CRS)
		q.Set("I", strconv.Itoa(req.Click.X))
		q.Set("J", strconv.Itoa(req.Click.Y))
	} else {
		q.Set("SRS", req.CRS)
		q.Set("X", strconv.Itoa(req.Click.X))
		q.Set("Y", strconv.Itoa(req.Click.Y))
	}
	return q
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

// parseCollection never fails: a malformed body means there is nothing
// usable under the click.
func (c *Client) parseCollection(layer string, body []byte) []domain.FeatureCandidate {
	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil || fc.Type != "FeatureCollection" {
		return nil
	}

	kind, ok := c.layerTypes[layer]
	if !ok {
		kind = domain.FeatureStop
	}

	candidates := make([]domain.FeatureCandidate, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.ID == "" {
			continue
		}
		candidates = append(candidates, domain.FeatureCandidate{
			Type:        kind,
			ID:          f.ID,
			DisplayName: displayName(f.ID, f.Properties),
			Properties:  f.Properties,
		})
	}
	return candidates
}

// displayName picks the label shown in popups and candidate lists. The
// GeoServer layers use Spanish property names.
func displayName(id string, props map[string]any) string {
	for _, key := range []string{"nombre", "descripcion", "name", "description"} {
		if v, ok := props[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return id
}
