package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/internal/catalog"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
)

func newCatalog(t *testing.T) (catalog.Store, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.ExperienceMirror{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := catalog.NewStore(conn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, conn
}

func seedMirror(t *testing.T, conn *gorm.DB, ledgerID, city string, status enums.ExperienceStatus, createdAt time.Time) *models.ExperienceMirror {
	t.Helper()
	m := &models.ExperienceMirror{
		BlockchainExperienceID: ledgerID,
		TransactionHash:        "0x" + ledgerID,
		Creator:                "0x1111111111111111111111111111111111111111",
		Title:                  "Experience " + ledgerID,
		City:                   city,
		PriceWei:               "50000000000000000",
		PriceDisplay:           "0.05",
		MaxParticipants:        4,
		Status:                 status,
		ScheduledAt:            createdAt.Add(48 * time.Hour),
		PaymentAdvance:         50,
		PaymentCompletion:      50,
		CreatedAt:              createdAt,
	}
	if err := conn.Create(m).Error; err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	return m
}

type listBody struct {
	Data experienceListResponse `json:"data"`
}

func TestExperienceListFiltersAndOrders(t *testing.T) {
	store, conn := newCatalog(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	seedMirror(t, conn, "1", "Lisbon", enums.ExperienceStatusActive, base)
	seedMirror(t, conn, "2", "Porto", enums.ExperienceStatusActive, base.Add(time.Hour))
	seedMirror(t, conn, "3", "lisbon", enums.ExperienceStatusActive, base.Add(2*time.Hour))
	seedMirror(t, conn, "4", "Lisbon", enums.ExperienceStatusFull, base.Add(3*time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/experiences?status=active&city=Lisbon&limit=10", nil)
	rec := httptest.NewRecorder()
	ExperienceList(store, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(body.Data.Items))
	}
	if body.Data.Items[0].BlockchainExperienceID != "3" || body.Data.Items[1].BlockchainExperienceID != "1" {
		t.Fatalf("expected newest first, got %s then %s", body.Data.Items[0].BlockchainExperienceID, body.Data.Items[1].BlockchainExperienceID)
	}
	if !body.Data.Items[0].Bookable {
		t.Fatal("active mirror with ledger id should be bookable")
	}
}

func TestExperienceListPaginates(t *testing.T) {
	store, conn := newCatalog(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		seedMirror(t, conn, id, "Lisbon", enums.ExperienceStatusActive, base.Add(time.Duration(i)*time.Hour))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/experiences?limit=2", nil)
	rec := httptest.NewRecorder()
	ExperienceList(store, testLogger()).ServeHTTP(rec, req)
	var first listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(first.Data.Items) != 2 || first.Data.NextCursor == "" {
		t.Fatalf("expected a full page with a cursor, got %d items cursor=%q", len(first.Data.Items), first.Data.NextCursor)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/experiences?limit=2&cursor="+first.Data.NextCursor, nil)
	rec = httptest.NewRecorder()
	ExperienceList(store, testLogger()).ServeHTTP(rec, req)
	var second listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(second.Data.Items) != 1 || second.Data.Items[0].BlockchainExperienceID != "1" {
		t.Fatalf("unexpected second page %+v", second.Data.Items)
	}
	if second.Data.NextCursor != "" {
		t.Fatalf("expected no further cursor")
	}
}

func TestExperienceListRejectsBadQuery(t *testing.T) {
	store, _ := newCatalog(t)
	for _, query := range []string{"status=open", "limit=0", "limit=abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/experiences?"+query, nil)
		rec := httptest.NewRecorder()
		ExperienceList(store, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rec.Code)
		}
	}
}

func detailRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/experiences/"+id, nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("experienceId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestExperienceDetail(t *testing.T) {
	store, conn := newCatalog(t)
	mirror := seedMirror(t, conn, "42", "Lisbon", enums.ExperienceStatusActive, time.Now().UTC())

	for _, id := range []string{mirror.ID.String(), "42"} {
		rec := httptest.NewRecorder()
		ExperienceDetail(store, 18, testLogger()).ServeHTTP(rec, detailRequest(id))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", id, rec.Code, rec.Body.String())
		}
		var body struct {
			Data experienceDetailResponse `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Data.Experience.ID != mirror.ID {
			t.Fatalf("unexpected mirror %s", body.Data.Experience.ID)
		}
		if body.Data.PaymentSummary == nil || len(body.Data.PaymentSummary.Installments) != 2 {
			t.Fatalf("expected a two stage payment summary, got %+v", body.Data.PaymentSummary)
		}
		if body.Data.PaymentSummary.Installments[0].Amount != "0.025" {
			t.Fatalf("unexpected advance amount %s", body.Data.PaymentSummary.Installments[0].Amount)
		}
	}
}

func TestExperienceDetailErrors(t *testing.T) {
	store, _ := newCatalog(t)

	rec := httptest.NewRecorder()
	ExperienceDetail(store, 18, testLogger()).ServeHTTP(rec, detailRequest(uuid.NewString()))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ExperienceDetail(store, 18, testLogger()).ServeHTTP(rec, detailRequest("not-an-id"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
