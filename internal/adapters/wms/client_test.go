package wms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/tsig-uy/mapgate/internal/core/domain"
)

func testLayerTypes() map[string]domain.FeatureType {
	return map[string]domain.FeatureType{
		"tsig:parada": domain.FeatureStop,
		"tsig:linea":  domain.FeatureLine,
	}
}

func testRequest() *domain.FeatureQueryRequest {
	return &domain.FeatureQueryRequest{
		Layer:       "tsig:parada",
		CRS:         "EPSG:3857",
		BBox:        [4]float64{-6262503.0, -4163881.0, -6245806.0, -4150340.0},
		Size:        domain.PixelSize{Width: 1024, Height: 768},
		Click:       domain.PixelPoint{X: 512, Y: 384},
		Format:      "application/json",
		Tolerance:   8,
		MaxFeatures: 50,
		Style:       "Parada",
	}
}

func TestClient_BuildsWMS111Query(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1.1.1", time.Second, testLayerTypes())
	if _, err := c.GetFeatureInfo(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"SERVICE":       "WMS",
		"VERSION":       "1.1.1",
		"REQUEST":       "GetFeatureInfo",
		"LAYERS":        "tsig:parada",
		"QUERY_LAYERS":  "tsig:parada",
		"STYLES":        "Parada",
		"SRS":           "EPSG:3857",
		"WIDTH":         "1024",
		"HEIGHT":        "768",
		"X":             "512",
		"Y":             "384",
		"INFO_FORMAT":   "application/json",
		"BUFFER":        "8",
		"FEATURE_COUNT": "50",
	}
	for k, v := range want {
		if got.Get(k) != v {
			t.Errorf("param %s = %q, want %q", k, got.Get(k), v)
		}
	}
	if got.Get("BBOX") == "" {
		t.Error("BBOX missing")
	}
	if got.Has("CQL_FILTER") {
		t.Error("CQL_FILTER must be omitted when empty")
	}
}

func TestClient_Builds130AxisParams(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1.3.0", time.Second, testLayerTypes())
	if _, err := c.GetFeatureInfo(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Get("CRS") != "EPSG:3857" || got.Get("I") != "512" || got.Get("J") != "384" {
		t.Fatalf("expected CRS/I/J params, got %v", got)
	}
	if got.Has("SRS") || got.Has("X") {
		t.Fatalf("1.3.0 queries must not carry SRS/X, got %v", got)
	}
}

func TestClient_ParsesCandidatesWithSpanishLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"type": "FeatureCollection",
			"features": [
				{"id": "parada.7", "properties": {"nombre": "Plaza Independencia", "refugio": true}},
				{"id": "parada.9", "properties": {"descripcion": "Terminal Baltasar Brum"}},
				{"id": "parada.11", "properties": {}}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1.1.1", time.Second, testLayerTypes())
	candidates, err := c.GetFeatureInfo(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].Type != domain.FeatureStop || candidates[0].DisplayName != "Plaza Independencia" {
		t.Fatalf("unexpected first candidate: %+v", candidates[0])
	}
	if candidates[1].DisplayName != "Terminal Baltasar Brum" {
		t.Fatalf("descripcion must label when nombre is absent, got %+v", candidates[1])
	}
	if candidates[2].DisplayName != "parada.11" {
		t.Fatalf("label must fall back to the feature id, got %+v", candidates[2])
	}
	if v, ok := candidates[0].Properties["refugio"].(bool); !ok || !v {
		t.Fatalf("properties must carry through, got %+v", candidates[0].Properties)
	}
}

func TestClient_LineLayerTagging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"FeatureCollection","features":[{"id":"linea.104","properties":{"descripcion":"104 Centro"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1.1.1", time.Second, testLayerTypes())
	req := testRequest()
	req.Layer = "tsig:linea"
	req.Style = ""

	candidates, err := c.GetFeatureInfo(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Type != domain.FeatureLine {
		t.Fatalf("expected a line candidate, got %+v", candidates)
	}
}

func TestClient_MalformedBodyYieldsNoCandidates(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `<ServiceExceptionReport>boom</ServiceExceptionReport>`,
		"not a FC":       `{"type":"Feature","id":"x"}`,
		"empty features": `{"type":"FeatureCollection","features":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "1.1.1", time.Second, testLayerTypes())
			candidates, err := c.GetFeatureInfo(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(candidates) != 0 {
				t.Fatalf("expected no candidates, got %+v", candidates)
			}
		})
	}
}

func TestClient_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "1.1.1", time.Second, testLayerTypes())
	if _, err := c.GetFeatureInfo(context.Background(), testRequest()); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, "1.1.1", 10*time.Second, testLayerTypes())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := c.GetFeatureInfo(ctx, testRequest()); err == nil {
		t.Fatal("expected a cancellation error")
	}
}
