package submission

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
)

// JSON-RPC codes providers use for throughput limits, and the EIP-1193 code
// wallets use for a user rejection.
const (
	rpcCodeLimitExceeded   = -32005
	rpcCodeTooManyRequests = -32029
	rpcCodeUserRejected    = 4001
)

// Bare status digits are not matched; amounts and hashes contain them.
var rateLimitMarkers = []string{"rate limit", "too many requests", "status 429", "limit exceeded"}

// Classify maps a raw ledger or transport error onto the submission taxonomy.
func Classify(err error) enums.TxErrorClass {
	if err == nil {
		return ""
	}
	if se, ok := AsError(err); ok {
		return se.Class
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case rpcCodeLimitExceeded, rpcCodeTooManyRequests:
			return enums.TxErrorRateLimited
		case rpcCodeUserRejected:
			return enums.TxErrorUserRejected
		}
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return enums.TxErrorRateLimited
	}
	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeRateLimit:
			return enums.TxErrorRateLimited
		case pkgerrors.CodeValidation:
			return enums.TxErrorValidation
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "user rejected", "user denied"):
		return enums.TxErrorUserRejected
	case containsAny(msg, "insufficient funds"):
		return enums.TxErrorInsufficientFunds
	case containsAny(msg, "nonce too low", "nonce too high", "replacement transaction underpriced", "already known"):
		return enums.TxErrorNonceConflict
	case containsAny(msg, "enforcedpause", "paused"):
		return enums.TxErrorPaused
	case errors.Is(err, ledger.ErrReverted), containsAny(msg, "execution reverted"):
		return enums.TxErrorExecutionReverted
	case containsAny(msg, rateLimitMarkers...):
		return enums.TxErrorRateLimited
	case errors.Is(err, ErrWalletNotConnected), errors.Is(err, ErrInFlight), errors.Is(err, ErrDemoExperience):
		return enums.TxErrorValidation
	}
	return enums.TxErrorNetworkUnknown
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
