package wallets

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxAccountNameLen = 36
	titleFragmentLen  = 10
	idFragmentLen     = 8
	defaultTitle      = "exp"
)

// DeriveAccountName builds the custodial account name for an experience:
// title fragment, experience id fragment and the last six digits of the
// epoch millisecond clock, lowercased and capped at 36 characters.
func DeriveAccountName(titleHint, experienceID string, now time.Time) string {
	title := truncate(sanitize(titleHint), titleFragmentLen)
	if title == "" {
		title = defaultTitle
	}
	id := truncate(sanitize(experienceID), idFragmentLen)
	suffix := fmt.Sprintf("%06d", now.UnixMilli()%1_000_000)

	name := strings.ToLower(title + "-" + id + "-" + suffix)
	return truncate(name, maxAccountNameLen)
}

// ValidAccountName reports whether name fits the custody naming rules.
func ValidAccountName(name string) bool {
	if name == "" || len(name) > maxAccountNameLen {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(value string, n int) string {
	if len(value) > n {
		return value[:n]
	}
	return value
}
