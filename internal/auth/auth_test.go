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

const (
	testKey    = "secret"
	testIssuer = "campusgate"
)

func TestIssueParseRoundTrip(t *testing.T) {
	token, exp, err := Issue("ops", RoleAdmin, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := Parse(token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = Parse(token, "other-key", testIssuer)
	assert.Error(t, err)
	_, err = Parse(token, testKey, "someone-else")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := Issue("ops", RoleAdmin, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(token, testKey, testIssuer)
	assert.Error(t, err)
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", AdminAuth(testKey, testIssuer), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	admin, _, err := Issue("ops", RoleAdmin, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	viewer, _, err := Issue("guard", "viewer", testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer nonsense", http.StatusUnauthorized},
		{"Bearer " + viewer, http.StatusForbidden},
		{"Bearer " + admin, http.StatusNoContent},
		{"bearer " + admin, http.StatusNoContent},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, tc.header)
	}
}
