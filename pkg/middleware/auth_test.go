package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/israelseleshi/building-management-system-sub000/pkg/jwt"
	"github.com/israelseleshi/building-management-system-sub000/pkg/response"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *jwt.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager, err := jwt.NewManager("middleware-secret", "bms", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", NewAuthMiddleware(manager).RequireAuth(), func(c *gin.Context) {
		response.Success(c, gin.H{
			"participant_id": GetParticipantID(c),
			"display_name":   GetDisplayName(c),
			"roles":          GetRoles(c),
		})
	})
	return r, manager
}

func TestRequireAuth_ValidToken(t *testing.T) {
	r, manager := setupTestRouter(t)

	token, _, err := manager.GenerateAccessToken("tenant-7", "Tom Tenant", []string{"tenant"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			ParticipantID string   `json:"participant_id"`
			DisplayName   string   `json:"display_name"`
			Roles         []string `json:"roles"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "tenant-7", body.Data.ParticipantID)
	assert.Equal(t, "Tom Tenant", body.Data.DisplayName)
	assert.Equal(t, []string{"tenant"}, body.Data.Roles)
}

func TestRequireAuth_Rejects(t *testing.T) {
	r, _ := setupTestRouter(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"bad token", BearerPrefix + "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body response.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
		})
	}
}
