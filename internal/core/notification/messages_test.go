package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocaleKeyFallsBackToEnglish(t *testing.T) {
	require.Equal(t, "en", localeKey(""))
	require.Equal(t, "en", localeKey("fr"))
	require.Equal(t, "es", localeKey("es"))
	require.Equal(t, "es", localeKey("es-MX"))
	require.Equal(t, "en", localeKey("en-US"))
}

func TestComposeMessageFirstAttemptReadsAsJustNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	_, body := composeMessage("en", "My Wallet", 3, now, true, now)
	require.Contains(t, body, "just now")
	require.Contains(t, body, "My Wallet")
	require.Contains(t, body, "3")
}

func TestComposeMessageSubsequentAttemptUsesElapsedTime(t *testing.T) {
	first := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := first.Add(30 * time.Hour)
	_, body := composeMessage("en", "My Wallet", 0, first, false, now)
	require.Contains(t, body, "1 days ago")
}
