package controllers

import (
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/experiences-backend/api/responses"
	"github.com/angelmondragon/experiences-backend/api/validators"
	"github.com/angelmondragon/experiences-backend/internal/booking"
	"github.com/angelmondragon/experiences-backend/internal/catalog"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/pagination"
)

type participantResponse struct {
	Address  string    `json:"address"`
	Nickname string    `json:"nickname"`
	TxHash   string    `json:"txHash"`
	JoinedAt time.Time `json:"joinedAt"`
}

type paymentStructureResponse struct {
	Advance       uint8 `json:"advance"`
	Checkin       uint8 `json:"checkin"`
	MidExperience uint8 `json:"midExperience"`
	Completion    uint8 `json:"completion"`
}

type experienceResponse struct {
	ID                     uuid.UUID                `json:"id"`
	BlockchainExperienceID string                   `json:"blockchainExperienceId,omitempty"`
	TransactionHash        string                   `json:"transactionHash"`
	Creator                string                   `json:"creator"`
	WalletAddress          string                   `json:"walletAddress,omitempty"`
	Title                  string                   `json:"title"`
	Description            string                   `json:"description,omitempty"`
	Location               string                   `json:"location,omitempty"`
	City                   string                   `json:"city,omitempty"`
	Price                  string                   `json:"price"`
	PriceWei               string                   `json:"priceWei"`
	MaxParticipants        int64                    `json:"maxParticipants"`
	CurrentParticipants    int64                    `json:"currentParticipants"`
	Participants           []participantResponse    `json:"participants"`
	Status                 enums.ExperienceStatus   `json:"status"`
	ScheduledAt            time.Time                `json:"scheduledAt"`
	PaymentStructure       paymentStructureResponse `json:"paymentStructure"`
	Bookable               bool                     `json:"bookable"`
	CreatedAt              time.Time                `json:"createdAt"`
	UpdatedAt              time.Time                `json:"updatedAt"`
}

type experienceListResponse struct {
	Items      []experienceResponse `json:"items"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

type experienceDetailResponse struct {
	Experience     experienceResponse `json:"experience"`
	PaymentSummary *booking.Summary   `json:"paymentSummary,omitempty"`
}

// ExperienceList serves the catalog listing newest first.
func ExperienceList(store catalog.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := catalog.QueryInput{
			City: validators.SanitizeString(r.URL.Query().Get("city"), 120),
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseExperienceStatus(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").WithDetails(map[string]any{"field": "status"}))
				return
			}
			input.Status = &status
		}

		result, err := store.Query(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := experienceListResponse{
			Items:      make([]experienceResponse, 0, len(result.Items)),
			NextCursor: result.NextCursor,
		}
		for i := range result.Items {
			resp.Items = append(resp.Items, toExperienceResponse(&result.Items[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

// ExperienceDetail serves one mirror by catalog uuid or by ledger id, with
// the payment breakdown shown before joining.
func ExperienceDetail(store catalog.Store, decimals int32, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "experienceId"))

		var (
			mirror *models.ExperienceMirror
			err    error
		)
		switch {
		case raw == "":
			err = pkgerrors.New(pkgerrors.CodeValidation, "experience id is required")
		case isLedgerID(raw):
			mirror, err = store.GetByLedgerID(r.Context(), raw)
		default:
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				err = pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid experience id")
				break
			}
			mirror, err = store.Get(r.Context(), id)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := experienceDetailResponse{Experience: toExperienceResponse(mirror)}
		exp, convErr := booking.ExperienceFromMirror(mirror)
		if convErr != nil {
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", convErr.Error()), "payment summary unavailable")
			}
		} else {
			summary := booking.Summarize(exp.Price, exp.PaymentStructure, decimals)
			resp.PaymentSummary = &summary
		}
		responses.WriteSuccess(w, resp)
	}
}

func isLedgerID(raw string) bool {
	if len(raw) > 78 {
		return false
	}
	n, ok := new(big.Int).SetString(raw, 10)
	return ok && n.Sign() >= 0
}

func toExperienceResponse(m *models.ExperienceMirror) experienceResponse {
	resp := experienceResponse{
		ID:                     m.ID,
		BlockchainExperienceID: m.BlockchainExperienceID,
		TransactionHash:        m.TransactionHash,
		Creator:                m.Creator,
		WalletAddress:          m.WalletAddress,
		Title:                  m.Title,
		Description:            m.Description,
		Location:               m.Location,
		City:                   m.City,
		Price:                  m.PriceDisplay,
		PriceWei:               m.PriceWei,
		MaxParticipants:        m.MaxParticipants,
		CurrentParticipants:    m.CurrentParticipants,
		Participants:           make([]participantResponse, 0, len(m.Participants)),
		Status:                 m.Status,
		ScheduledAt:            m.ScheduledAt,
		PaymentStructure: paymentStructureResponse{
			Advance:       m.PaymentAdvance,
			Checkin:       m.PaymentCheckin,
			MidExperience: m.PaymentMidExperience,
			Completion:    m.PaymentCompletion,
		},
		Bookable:  m.HasLedgerID() && m.Status == enums.ExperienceStatusActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, p := range m.Participants {
		resp.Participants = append(resp.Participants, participantResponse(p))
	}
	return resp
}
