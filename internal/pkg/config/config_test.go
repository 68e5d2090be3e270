package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("mapgate-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.WMS.Version != "1.1.1" {
		t.Errorf("expected default WMS version 1.1.1, got %s", cfg.WMS.Version)
	}
	if cfg.Throttle.MaxConcurrent != 3 {
		t.Errorf("expected default throttle limit 3, got %d", cfg.Throttle.MaxConcurrent)
	}
	if cfg.Telemetry.ServiceName != "mapgate-test" {
		t.Errorf("expected service name propagated, got %s", cfg.Telemetry.ServiceName)
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for zero config")
	}
	msg := err.Error()
	for _, want := range []string{"server.port", "wms.url", "throttle.max_concurrent", "lines_api.base_url"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in validation message, got: %s", want, msg)
		}
	}
}

func TestValidate_RejectsUnknownWMSVersion(t *testing.T) {
	cfg, err := Load("mapgate-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.WMS.Version = "2.0.0"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported WMS version")
	}
}
