package custody

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

	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
)

const (
	defaultNetwork              = "base-sepolia"
	defaultFaucetToken          = "eth"
	requestBodyReadLimit  int64 = 1024
	defaultRequestTimeout       = 15 * time.Second
)

var (
	errBaseURLRequired = errors.New("custody base url is required")
	errAPIKeyRequired  = errors.New("custody api key is required")
)

// Client wraps the custodial account backend: accounts are create-or-fetch by
// name and testnet funds come from a one-shot faucet request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	network    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithNetwork selects the network accounts are created on.
func WithNetwork(network string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(network); trimmed != "" {
			c.network = trimmed
		}
	}
}

// WithFaucetToken selects the asset requested from the faucet.
func WithFaucetToken(token string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			c.token = trimmed
		}
	}
}

// NewClient builds the custody client.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		baseURL:    trimmedURL,
		apiKey:     trimmedKey,
		network:    defaultNetwork,
		token:      defaultFaucetToken,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Network is the network accounts and faucet requests target.
func (c *Client) Network() string {
	return c.network
}

// Account is a custodial account as returned by the backend.
type Account struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Network string `json:"network"`
}

// GetOrCreateAccount returns the account registered under name, creating it
// on first use.
func (c *Client) GetOrCreateAccount(ctx context.Context, name string) (*Account, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "custody client not configured")
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account name is required")
	}

	var account Account
	body := map[string]string{"name": trimmed, "network": c.network}
	if err := c.post(ctx, "accounts", body, &account); err != nil {
		return nil, err
	}
	if strings.TrimSpace(account.Address) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "custody returned an account without address")
	}
	if account.Name == "" {
		account.Name = trimmed
	}
	if account.Network == "" {
		account.Network = c.network
	}
	return &account, nil
}

// RequestFaucet asks the faucet to fund address and returns the funding tx hash.
func (c *Client) RequestFaucet(ctx context.Context, address string) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "custody client not configured")
	}
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}

	var resp struct {
		TransactionHash string `json:"transactionHash"`
	}
	body := map[string]string{"address": trimmed, "network": c.network, "token": c.token}
	if err := c.post(ctx, "faucet", body, &resp); err != nil {
		return "", err
	}
	return resp.TransactionHash, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal custody request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build custody request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute custody request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		code := pkgerrors.CodeDependency
		if resp.StatusCode == http.StatusTooManyRequests {
			code = pkgerrors.CodeRateLimit
		}
		return pkgerrors.Wrap(code, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), path+" request failed")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+path+" response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
