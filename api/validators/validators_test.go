package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
)

type walletBody struct {
	ExperienceID string `json:"experienceId" validate:"required,max=8"`
	Owner        string `json:"owner" validate:"omitempty,eth_addr"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	var dest walletBody
	err := DecodeJSONBody(post(`{"experienceId":"","owner":"0x12"}`), &dest)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["experienceId"])
	assert.Equal(t, "must be a 0x-prefixed 20 byte address", details["owner"])
}

func TestDecodeJSONBodyRejectsTrailingAndOversizedInput(t *testing.T) {
	var dest walletBody
	assert.Error(t, DecodeJSONBody(post(`{"experienceId":"1"}{"experienceId":"2"}`), &dest))
	assert.Error(t, DecodeJSONBody(post(`{"experienceId":"1","extra":true}`), &dest))

	huge := `{"experienceId":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	err := DecodeJSONBody(post(huge), &dest)
	require.Error(t, err)
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=7&bad=x&big=900", nil)

	v, err := ParseQueryInt(r, "limit", 20, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = ParseQueryInt(r, "missing", 20, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	_, err = ParseQueryInt(r, "bad", 20, 1, 50)
	assert.Error(t, err)
	_, err = ParseQueryInt(r, "big", 20, 1, 50)
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Lisbon", SanitizeString("  Lis\x00bon\n ", 0))
	assert.Equal(t, "Café", SanitizeString("Café Lisboa", 4))
}
