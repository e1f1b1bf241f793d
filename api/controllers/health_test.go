package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/experiences-backend/pkg/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(envHeader) != "dev" {
		t.Fatalf("expected env header")
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"redis": stubPinger{err: errors.New("down")}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code == http.StatusOK {
		t.Fatal("expected failure when a dependency is down")
	}
}
