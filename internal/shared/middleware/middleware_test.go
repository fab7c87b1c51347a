package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parktayo/internal/shared/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// guardedRequest runs one request through a role guard with the given role
// claim already in context, the way JWTAuth leaves it.
func guardedRequest(t *testing.T, guard gin.HandlerFunc, role string) *httptest.ResponseRecorder {
	t.Helper()

	router := gin.New()
	router.GET("/guarded", func(c *gin.Context) {
		if role != "" {
			c.Set("user_role", role)
		}
	}, guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequireLandlordRoles(t *testing.T) {
	tests := []struct {
		role string
		code int
	}{
		{RoleLandlord, http.StatusOK},
		{RoleAdmin, http.StatusOK},
		{RoleUser, http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		rec := guardedRequest(t, RequireLandlord(), tt.role)
		assert.Equal(t, tt.code, rec.Code, "role %q", tt.role)
	}
}

func TestRequireAdminRejectsLandlord(t *testing.T) {
	assert.Equal(t, http.StatusOK, guardedRequest(t, RequireAdmin(), RoleAdmin).Code)
	assert.Equal(t, http.StatusForbidden, guardedRequest(t, RequireAdmin(), RoleLandlord).Code)
}

func TestJWTAuthAcceptsSignedAccessToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"

	userID := uuid.New().String()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   "maria.santos@example.com",
		"role":    RoleUser,
		"type":    "access",
	})
	signed, err := token.SignedString([]byte(cfg.JWT.Secret))
	require.NoError(t, err)

	var seenID uuid.UUID
	router := gin.New()
	router.GET("/me", JWTAuthWithConfig(cfg), func(c *gin.Context) {
		id, err := CurrentUserID(c)
		require.NoError(t, err)
		seenID = id
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, seenID.String())
}

func TestJWTAuthRejectsMissingAndMalformedHeaders(t *testing.T) {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"

	router := gin.New()
	router.GET("/me", JWTAuthWithConfig(cfg), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestCurrentUserIDRequiresStringClaim(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, err := CurrentUserID(c)
	require.Error(t, err)

	c.Set("user_id", 42)
	_, err = CurrentUserID(c)
	require.Error(t, err)

	id := uuid.New()
	c.Set("user_id", id.String())
	got, err := CurrentUserID(c)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
