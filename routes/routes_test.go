package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"guardget/config"
	"guardget/database/repository/repotest"
	"guardget/handlers"
	"guardget/models"
	"guardget/services/audit"
	"guardget/services/identity"
	"guardget/services/otp"
	"guardget/services/registry"
	"guardget/services/transfer"
	"guardget/services/verification"
	"guardget/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var codePattern = regexp.MustCompile(`code is ([A-Z2-7]+)`)

type inbox struct {
	mu   sync.Mutex
	last string
}

func (i *inbox) Send(_ context.Context, _, message string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.last = message
	return nil
}

type server struct {
	t      *testing.T
	router *gin.Engine
	issuer *otp.DefaultOtpIssuer
	inbox  *inbox
}

func newServer(t *testing.T) (*server, map[string]string) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	stores := repotest.NewStores(t)

	auditSvc := &audit.DefaultAuditService{Repo: stores.Audit}
	identitySvc := &identity.DefaultIdentityService{Repo: stores.Users}
	reg := &registry.DefaultDeviceRegistry{Repo: stores.Devices, Audit: auditSvc, Tx: stores.Tx}
	box := &inbox{}
	policy := config.DefaultOTPPolicy()
	policy.HashCost = bcrypt.MinCost
	issuer := &otp.DefaultOtpIssuer{Repo: stores.Otps, Notifier: box, Policy: policy}
	coordinator := &transfer.DefaultCoordinator{
		Tx: stores.Tx, Transfers: stores.Transfers, Registry: reg, Issuer: issuer,
		Audit: auditSvc, Identity: identitySvc, Policy: config.DefaultTransferPolicy(),
	}

	router := gin.New()
	RegisterRoutes(router, &handlers.HandlerBundle{
		Auth:              identitySvc,
		MaxRequestsPerMin: 1000,
		Transfers:         handlers.NewTransferHandler(coordinator),
		Devices:           handlers.NewDeviceHandler(reg, auditSvc),
		Verify: handlers.NewVerifyHandler(&verification.DefaultVerificationService{
			Registry: reg, Audit: auditSvc, Users: identitySvc,
		}),
	})

	tokens := map[string]string{}
	for _, name := range []string{"erin", "frank"} {
		user := repotest.SeedUser(t, stores, name)
		token, err := identitySvc.IssueToken(ctx, user.ID, time.Hour)
		require.NoError(t, err)
		tokens[name] = token
		tokens[name+".id"] = user.ID
	}
	return &server{t: t, router: router, issuer: issuer, inbox: box}, tokens
}

func (s *server) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *server) lastCode() string {
	s.t.Helper()
	s.issuer.Wait()
	s.inbox.mu.Lock()
	defer s.inbox.mu.Unlock()
	m := codePattern.FindStringSubmatch(s.inbox.last)
	require.Len(s.t, m, 2)
	return m[1]
}

func TestTransferFlowOverHTTP(t *testing.T) {
	s, tokens := newServer(t)

	status, _ := s.do(http.MethodPost, "/api/devices", "", map[string]string{"name": "MacBook", "type": "laptop", "serialNumber": "C02XL0GHJGH5"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, device := s.do(http.MethodPost, "/api/devices", tokens["erin"], map[string]string{
		"name": "MacBook", "type": "laptop", "serialNumber": "c02xl0ghjgh5",
	})
	require.Equal(t, http.StatusCreated, status, device)
	deviceID := device["id"].(string)
	assert.Equal(t, "C02XL0GHJGH5", device["serialNumber"])

	status, dup := s.do(http.MethodPost, "/api/devices", tokens["frank"], map[string]string{
		"name": "Other", "type": "laptop", "serialNumber": "C02XL0GHJGH5",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeDeviceExists, dup["code"])

	status, session := s.do(http.MethodPost, "/api/transfers", tokens["erin"], map[string]string{
		"deviceId": deviceID, "recipientEmail": "frank@example.com", "reason": "upgrade",
	})
	require.Equal(t, http.StatusCreated, status, session)
	sessionToken := session["sessionToken"].(string)
	assert.Equal(t, string(models.TransferOtpSent), session["status"])

	status, again := s.do(http.MethodPost, "/api/transfers", tokens["erin"], map[string]string{
		"deviceId": deviceID, "recipientEmail": "frank@example.com",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeAlreadyPending, again["code"])

	status, wrong := s.do(http.MethodPost, "/api/transfers/verify", tokens["erin"], map[string]string{
		"sessionToken": sessionToken, "code": "00000001",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, models.CodeOtpInvalid, wrong["code"])
	assert.EqualValues(t, 4, wrong["attemptsRemaining"])

	status, resend := s.do(http.MethodPost, "/api/transfers/resend", tokens["erin"], map[string]string{"sessionToken": sessionToken})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.NotEmpty(t, resend["retryAt"])

	status, view := s.do(http.MethodPost, "/api/transfers/status", tokens["erin"], map[string]string{"sessionToken": sessionToken})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, view["attemptsRemaining"])

	status, done := s.do(http.MethodPost, "/api/transfers/verify", tokens["erin"], map[string]string{
		"sessionToken": sessionToken, "code": s.lastCode(),
	})
	require.Equal(t, http.StatusOK, status, done)
	assert.Equal(t, true, done["completed"])

	status, _ = s.do(http.MethodGet, "/api/devices/"+deviceID, tokens["erin"], nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, owned := s.do(http.MethodGet, "/api/devices/"+deviceID, tokens["frank"], nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, tokens["frank.id"], owned["ownerId"])

	status, history := s.do(http.MethodGet, "/api/devices/"+deviceID+"/history", tokens["frank"], nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, history["history"], 1)
}

func TestPublicLookupOverHTTP(t *testing.T) {
	s, tokens := newServer(t)

	status, unknown := s.do(http.MethodGet, "/api/verify?identifier=ZZ-NOT-THERE&type=serial", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", unknown["status"])
	assert.Equal(t, []interface{}{}, unknown["history"])

	status, device := s.do(http.MethodPost, "/api/devices", tokens["erin"], map[string]string{
		"name": "Galaxy", "type": "phone", "imei1": "356938035643809",
	})
	require.Equal(t, http.StatusCreated, status, device)

	status, reported := s.do(http.MethodPut, "/api/devices/"+device["id"].(string)+"/status", tokens["erin"], map[string]string{
		"status": "stolen", "location": "Kisumu CBD",
	})
	require.Equal(t, http.StatusOK, status, reported)

	status, flagged := s.do(http.MethodGet, "/api/verify?identifier=356938035643809&type=imei", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "stolen", flagged["status"])
	assert.Equal(t, true, flagged["flagged"])
	assert.Equal(t, "Kisumu CBD", flagged["lastKnownLocation"])
	contact := flagged["ownerContact"].(map[string]interface{})
	assert.Equal(t, "e***@example.com", contact["email"])

	status, _ = s.do(http.MethodPut, "/api/devices/"+device["id"].(string)+"/status", tokens["frank"], map[string]string{"status": "active"})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestReportStatusOverHTTP(t *testing.T) {
	s, tokens := newServer(t)

	status, device := s.do(http.MethodPost, "/api/devices", tokens["erin"], map[string]string{
		"name": "MacBook", "type": "laptop", "serialNumber": "C02XL0GHJGH6",
	})
	require.Equal(t, http.StatusCreated, status, device)
	path := "/api/devices/" + device["id"].(string) + "/status"

	status, _ = s.do(http.MethodPut, path, tokens["erin"], map[string]string{"location": "Kilimani"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(http.MethodPut, path, tokens["frank"], map[string]string{"status": "stolen"})
	assert.Equal(t, http.StatusForbidden, status)

	status, reported := s.do(http.MethodPut, path, tokens["erin"], map[string]string{
		"status": " Stolen ", "location": " Kilimani ", "actorId": tokens["frank.id"],
	})
	require.Equal(t, http.StatusOK, status, reported)
	assert.Equal(t, string(models.DeviceStolen), reported["status"])
	assert.Equal(t, "Kilimani", reported["lastKnownLocation"])
	assert.Equal(t, tokens["erin.id"], reported["ownerId"])
}

func TestHealthRoute(t *testing.T) {
	s, _ := newServer(t)
	utils.CheckHealth(context.Background(), func(context.Context) error { return nil }, nil)
	status, body := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "guardget", body["service"])
}
