package controllers

import (
	"net/http"

	"github.com/angelmondragon/experiences-backend/api/responses"
	"github.com/angelmondragon/experiences-backend/api/validators"
	"github.com/angelmondragon/experiences-backend/internal/wallets"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
)

// WalletProvision creates or fetches the custodial wallet of an experience.
// Account creation failures still answer 200 with a wallet in error status.
func WalletProvision(provisioner wallets.Provisioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body wallets.ProvisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		experienceID := validators.SanitizeString(body.ExperienceID, 128)
		titleHint := validators.SanitizeString(body.TitleHint, 200)

		result, err := provisioner.Provision(r.Context(), experienceID, titleHint)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallets.NewProvisionResponse(result))
	}
}
