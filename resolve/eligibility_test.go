package resolve

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st-keller/namerace/internal/racetest"
	"github.com/st-keller/namerace/transport"
)

func TestEligibilityChecker(t *testing.T) {
	srv := racetest.NewHTTP2Server(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/minecraft/profile/namechange", r.URL.Path)
		switch r.Header.Get("Authorization") {
		case "Bearer ready":
			_, _ = w.Write([]byte(`{"changedAt": "2026-01-01T00:00:00Z", "nameChangeAllowed": true}`))
		case "Bearer cooling":
			_, _ = w.Write([]byte(`{"nameChangeAllowed": false}`))
		case "Bearer odd":
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	c := NewEligibilityChecker(srv.URL, transport.BuildHTTP2Client(srv.Pool(), time.Second), nil)
	ctx := context.Background()

	require.NoError(t, c.CheckEligibility(ctx, "ready"))
	assert.ErrorIs(t, c.CheckEligibility(ctx, "cooling"), ErrNotEligible)

	err := c.CheckEligibility(ctx, "odd")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotEligible)

	err = c.CheckEligibility(ctx, "expired")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
