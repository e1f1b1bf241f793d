package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/experiences-backend/pkg/auth"
)

func testTokenConfig() auth.ServiceTokenConfig {
	return auth.ServiceTokenConfig{Secret: "secret", Issuer: "experiences", TTL: time.Minute}
}

func TestServiceAuthRejectsMissingToken(t *testing.T) {
	handler := ServiceAuth(testTokenConfig(), auth.ScopeWalletProvision, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestServiceAuthRejectsForeignSecret(t *testing.T) {
	other := testTokenConfig()
	other.Secret = "other"
	token, err := auth.MintServiceToken(other, time.Now(), "wallet-provisioner", auth.ScopeWalletProvision)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	handler := ServiceAuth(testTokenConfig(), auth.ScopeWalletProvision, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestServiceAuthRejectsWrongScope(t *testing.T) {
	token, err := auth.MintServiceToken(testTokenConfig(), time.Now(), "reporting", "reports:read")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	handler := ServiceAuth(testTokenConfig(), auth.ScopeWalletProvision, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestServiceAuthSeedsContext(t *testing.T) {
	token, err := auth.MintServiceToken(testTokenConfig(), time.Now(), "wallet-provisioner", auth.ScopeWalletProvision)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var subject, scope string
	handler := ServiceAuth(testTokenConfig(), auth.ScopeWalletProvision, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		scope = ScopeFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if subject != "wallet-provisioner" || scope != auth.ScopeWalletProvision {
		t.Fatalf("unexpected context subject=%q scope=%q", subject, scope)
	}
}
