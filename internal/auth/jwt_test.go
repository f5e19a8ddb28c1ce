package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("tutorledger", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("tutor-1")
	require.NoError(t, err)

	claims, err := iss.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tutor-1", claims.Subject)
	assert.Equal(t, RoleTutor, claims.Role)
	assert.False(t, claims.Refresh)

	refresh, err := iss.Parse(pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, refresh.Refresh)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("tutorledger", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("tutor-1")
	require.NoError(t, err)

	other := NewIssuer("tutorledger", "other-secret", time.Minute, time.Hour)
	_, err = other.Parse(pair.AccessToken)
	assert.Error(t, err, "wrong key")

	renamed := NewIssuer("someone-else", "secret", time.Minute, time.Hour)
	_, err = renamed.Parse(pair.AccessToken)
	assert.Error(t, err, "wrong issuer")

	expired := NewIssuer("tutorledger", "secret", time.Minute, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue("tutor-1")
	require.NoError(t, err)
	_, err = iss.Parse(old.AccessToken)
	assert.Error(t, err, "expired")

	_, err = iss.Issue("")
	assert.Error(t, err)
}

func TestUserAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("tutorledger", "secret", time.Minute, time.Hour)
	r := gin.New()
	r.GET("/me", UserAuth(iss), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	pair, err := iss.Issue("tutor-1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "refresh token", header: "Bearer " + pair.RefreshToken, want: http.StatusUnauthorized},
		{name: "access token", header: "Bearer " + pair.AccessToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "tutor-1", w.Body.String())
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	iss := NewIssuer("tutorledger", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("tutor-1")
	require.NoError(t, err)

	next, err := iss.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	claims, err := iss.Parse(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tutor-1", claims.Subject)
	assert.False(t, claims.Refresh)

	_, err = iss.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrNotRefreshToken)
	_, err = iss.Refresh("garbage")
	assert.Error(t, err)
}
