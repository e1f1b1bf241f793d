package redis

import "strings"

// Every key lives under the "exp" namespace; segments are joined with ":".
const keyNamespace = "exp"

const (
	segIdempotency = "idempotency"
	segInFlight    = "inflight"
	segWallet      = "wallet"
	segBooking     = "booking"
	segRateLimit   = "rl"
	segLock        = "lock"
)

// key joins non-empty trimmed segments under the namespace.
func key(segments ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, s := range segments {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

// IdempotencyKey stores a replayable response for (scope, client key).
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(segIdempotency, scope, id)
}

// RateLimitKey holds one fixed-window counter.
func (c *Client) RateLimitKey(scope string) string {
	return key(segRateLimit, scope)
}

// InFlightKey scopes a submission to (account, experience, operation).
// Accounts are lowercased so checksummed and plain addresses collide.
func (c *Client) InFlightKey(account, experience, operation string) string {
	return key(segInFlight, strings.ToLower(account), experience, operation)
}

func (c *Client) WalletNameKey(experienceID string) string {
	return key(segWallet, "name", experienceID)
}

func (c *Client) BookingSessionKey(experienceID, participant string) string {
	return key(segBooking, experienceID, strings.ToLower(participant))
}

// LockKey names a worker lease per environment.
func (c *Client) LockKey(worker, env string) string {
	if env == "" {
		env = "local"
	}
	return key(segLock, worker, env)
}
