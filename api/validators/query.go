package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"

	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter bounded to [min, max].
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be a whole number").
			WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// SanitizeString trims, drops control characters and cuts to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen <= 0 {
		return clean
	}
	if runes := []rune(clean); len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return clean
}
