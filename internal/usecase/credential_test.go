package usecase

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestCheckCredential(t *testing.T) {
	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		credential string
		wantSub    string
		wantErr    error
	}{
		{name: "missing", credential: "", wantErr: models.ErrNoCredential},
		{name: "opaque", credential: "sess_4f2a9c"},
		{name: "dotted but not a jwt", credential: "a.b.c"},
		{
			name:       "valid jwt",
			credential: signed(t, jwt.MapClaims{"sub": "user-7", "exp": now.Add(time.Hour).Unix()}),
			wantSub:    "user-7",
		},
		{
			name:       "jwt without expiry",
			credential: signed(t, jwt.MapClaims{"sub": "user-8"}),
			wantSub:    "user-8",
		},
		{
			name:       "expired jwt",
			credential: signed(t, jwt.MapClaims{"sub": "user-7", "exp": now.Add(-time.Minute).Unix()}),
			wantErr:    models.ErrAuthRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := CheckCredential(tt.credential, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSub, sub)
		})
	}
}

func TestNewSessionTakesViewerFromToken(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"sub": "user-7", "exp": time.Now().Add(time.Hour).Unix()})
	s, err := NewSession(SessionParams{
		Config:    SessionConfig{CampaignID: "camp-1", Credential: tok},
		API:       newFakeAPI(),
		Transport: (&fakeTransport{}).factory(),
	})
	require.NoError(t, err)
	defer s.Stop()

	assert.Equal(t, "user-7", s.State().ViewerID)
	assert.Equal(t, "user-7", s.Store().ViewerID())
}
