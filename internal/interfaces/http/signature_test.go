package http

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedVerifier(secret string, now time.Time) *ActorVerifier {
	v := NewActorVerifier(secret, time.Minute)
	v.now = func() time.Time { return now }
	return v
}

func TestActorVerifier_Verify(t *testing.T) {
	now := time.Unix(1_780_000_000, 0)
	v := fixedVerifier("gateway-secret", now)
	ts := strconv.FormatInt(now.Unix(), 10)
	good := v.Sign(ts, "treasurer-1", "TREASURER")

	tests := []struct {
		name      string
		timestamp string
		identity  string
		role      string
		signature string
		wantErr   string
	}{
		{"valid", ts, "treasurer-1", "TREASURER", good, ""},
		{"missing signature", ts, "treasurer-1", "TREASURER", "", "missing actor signature"},
		{"tampered role", ts, "treasurer-1", "SUPER_ADMIN", good, "invalid actor signature"},
		{"tampered identity", ts, "treasurer-2", "TREASURER", good, "invalid actor signature"},
		{"bad timestamp", "yesterday", "treasurer-1", "TREASURER", good, "invalid actor timestamp"},
		{"expired", strconv.FormatInt(now.Add(-2*time.Minute).Unix(), 10), "treasurer-1", "TREASURER", good, "outside allowed window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.timestamp, tt.identity, tt.role, tt.signature)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestActorVerifier_DisabledWithoutSecret(t *testing.T) {
	v := NewActorVerifier("", 0)
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify("", "anyone", "SUPER_ADMIN", ""))
}

func TestServer_ActorVerifierGuardsAPI(t *testing.T) {
	now := time.Now()
	v := fixedVerifier("gateway-secret", now)
	s := newTestServer(t, WithActorVerifier(v))

	// unsigned requests are rejected before reaching the engine
	w, resp := do(t, s, http.MethodGet, "/api/requests", "admin", "SUPER_ADMIN", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", resp.Code)

	ts := strconv.FormatInt(now.Unix(), 10)
	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	req.Header.Set(HeaderActorIdentity, "admin")
	req.Header.Set(HeaderActorRole, "SUPER_ADMIN")
	req.Header.Set(HeaderActorTimestamp, ts)
	req.Header.Set(HeaderActorSignature, v.Sign(ts, "admin", "SUPER_ADMIN"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays open
	w, _ = do(t, s, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
