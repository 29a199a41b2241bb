package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"guardget/models"
	"guardget/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type tokenTable map[string]*models.User

func (t tokenTable) Authenticate(_ context.Context, token string) (*models.User, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, errors.New("unknown token")
}

func whoAmI(c *gin.Context) { c.String(http.StatusOK, CurrentUserID(c)) }

func TestJWTAuthUserMiddleware(t *testing.T) {
	token, err := utils.GenerateToken("user-1", "u1@example.com", time.Hour)
	require.NoError(t, err)
	stale, err := utils.GenerateToken("user-1", "u1@example.com", 2*time.Hour)
	require.NoError(t, err)
	expired, err := utils.GenerateToken("user-1", "u1@example.com", -time.Hour)
	require.NoError(t, err)

	users := tokenTable{token: {ID: "user-1"}, expired: {ID: "user-1"}}
	r := gin.New()
	r.GET("/me", JWTAuthUserMiddleware(users, nil), whoAmI)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"no scheme", token, http.StatusUnauthorized},
		{"rotated out", "Bearer " + stale, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "user-1", w.Body.String())
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/ping", RateLimitMiddleware(60, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Real-IP", "198.51.100.7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGeoLocator(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/203.0.113.9/json/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"city":"Mombasa","region":"Mombasa County","country_name":"Kenya","country_code":"KE"}`))
	}))
	defer api.Close()

	geo := NewGeoLocator(api.URL, zap.NewNop())
	assert.Equal(t, "Mombasa, Mombasa County, Kenya", geo.Locate("203.0.113.9").Describe())
	assert.Equal(t, "Mombasa, Mombasa County, Kenya", geo.Locate("203.0.113.9").Describe())
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "", geo.Locate("192.168.1.20").Describe())
	assert.Equal(t, int32(1), calls.Load())

	r := gin.New()
	r.GET("/where", geo.Middleware(), func(c *gin.Context) { c.String(http.StatusOK, LocationFromContext(c)) })
	req := httptest.NewRequest(http.MethodGet, "/where", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "Mombasa, Mombasa County, Kenya", w.Body.String())
}
