package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/types"
)

// detail keys copied from submission failures into the request log
var loggedDetailKeys = []string{"class", "operation", "attempts"}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err in the shared envelope. Untyped errors become
// INTERNAL_ERROR and never leak their text.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{
		Code:    string(typed.Code()),
		Message: typed.PublicMessage(),
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}

	if logg != nil {
		fields := pkgerrors.Dump(err).Fields()
		if d, ok := typed.Details().(map[string]any); ok {
			for _, key := range loggedDetailKeys {
				if v, ok := d[key]; ok {
					fields["detail_"+key] = v
				}
			}
		}
		logg.Error(logg.WithFields(ctx, fields), "request.error", err)
	}

	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are already sent; nothing useful left to do on failure
	_ = json.NewEncoder(w).Encode(payload)
}
