package wallets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/experiences-backend/pkg/auth"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
)

const (
	// ProvisionPath is the wallet backend route shared with the API server.
	ProvisionPath         = "/api/v1/wallets/provision"
	remoteSubject         = "wallet-provisioner"
	responseBodyReadLimit = 1024
)

// ProvisionRequest is the body accepted by the provisioning endpoint.
type ProvisionRequest struct {
	ExperienceID string `json:"experienceId" validate:"required,max=128"`
	TitleHint    string `json:"titleHint" validate:"max=200"`
}

// ProvisionResponse is the body returned by the provisioning endpoint.
type ProvisionResponse struct {
	Wallet       *Wallet `json:"wallet"`
	Degraded     bool    `json:"degraded"`
	FundingError string  `json:"fundingError,omitempty"`
	CreateError  string  `json:"createError,omitempty"`
}

// NewProvisionResponse renders a result for the wire.
func NewProvisionResponse(result *ProvisionResult) ProvisionResponse {
	resp := ProvisionResponse{Wallet: result.Wallet, Degraded: result.Degraded()}
	if result.FundingErr != nil {
		resp.FundingError = result.FundingErr.Error()
	}
	if result.CreateErr != nil {
		resp.CreateError = result.CreateErr.Error()
	}
	return resp
}

// RemoteProvisioner calls the provisioning endpoint of a trusted backend with
// a short-lived service token. Its contract matches Service.
type RemoteProvisioner struct {
	baseURL    string
	tokens     auth.ServiceTokenConfig
	httpClient *http.Client
	now        func() time.Time
}

var _ Provisioner = (*RemoteProvisioner)(nil)

func NewRemoteProvisioner(baseURL string, tokens auth.ServiceTokenConfig, httpClient *http.Client) (*RemoteProvisioner, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("wallet backend url is required")
	}
	if tokens.Secret == "" {
		return nil, errors.New("service token secret is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RemoteProvisioner{baseURL: trimmed, tokens: tokens, httpClient: httpClient, now: time.Now}, nil
}

func (p *RemoteProvisioner) Provision(ctx context.Context, experienceID, titleHint string) (*ProvisionResult, error) {
	if strings.TrimSpace(experienceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "experience id is required")
	}
	token, err := auth.MintServiceToken(p.tokens, p.now(), remoteSubject, auth.ScopeWalletProvision)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint service token")
	}
	payload, err := json.Marshal(ProvisionRequest{ExperienceID: experienceID, TitleHint: titleHint})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal provision request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+ProvisionPath, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build provision request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	data, err := p.do(req)
	if err != nil {
		return unreachableResult(experienceID, err), nil
	}

	result := &ProvisionResult{Wallet: data.Wallet}
	if data.CreateError != "" {
		result.CreateErr = errors.New(data.CreateError)
	}
	if data.FundingError != "" {
		result.FundingErr = errors.New(data.FundingError)
	}
	if data.Degraded && result.FundingErr == nil {
		result.PersistErr = errRemoteDegraded
	}
	return result, nil
}

var errRemoteDegraded = errors.New("wallet backend reported degraded provisioning")

func (p *RemoteProvisioner) do(req *http.Request) (*ProvisionResponse, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute provision request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "provision request failed")
	}

	var envelope struct {
		Data ProvisionResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode provision response")
	}
	if envelope.Data.Wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provision response missing wallet")
	}
	return &envelope.Data, nil
}

// unreachableResult reports a backend failure the same way Service reports a
// custody failure: an error-status wallet with no address.
func unreachableResult(experienceID string, err error) *ProvisionResult {
	return &ProvisionResult{
		Wallet:    &Wallet{ExperienceID: experienceID, Status: enums.WalletStatusError},
		CreateErr: err,
	}
}
