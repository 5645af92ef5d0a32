package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/fiberspec/internal/utils"
)

func newTestEngine(m *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.POST("/cmd", m.RequireOperator(), func(c *gin.Context) {
		op, _ := GetOperator(c)
		c.JSON(http.StatusOK, gin.H{"operator": op})
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func do(r http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireOperatorDisabled(t *testing.T) {
	m := NewAuthMiddleware(nil)
	assert.False(t, m.Enabled())

	w := do(newTestEngine(m), http.MethodPost, "/cmd", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireOperator(t *testing.T) {
	manager := utils.NewJWTManager("secret", time.Hour)
	r := newTestEngine(NewAuthMiddleware(manager))

	token, err := manager.GenerateToken("alice")
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/cmd", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"operator":"alice"`)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(r, http.MethodPost, "/cmd", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":7000`)

	w = do(r, http.MethodPost, "/cmd", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":7003`)

	expired, err := utils.NewJWTManager("secret", -time.Minute).GenerateToken("alice")
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/cmd", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":7002`)
}

func TestRecovery(t *testing.T) {
	w := do(newTestEngine(NewAuthMiddleware(nil)), http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}
