package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"guardget/config"
	"guardget/database/repository/repotest"
	"guardget/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type capturedMessage struct {
	phone, message string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []capturedMessage
}

func (c *captureNotifier) Send(_ context.Context, phone, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, capturedMessage{phone, message})
	return nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time         { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newIssuer(t *testing.T) (*DefaultOtpIssuer, *clock, *captureNotifier) {
	stores := repotest.NewStores(t)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	policy := config.DefaultOTPPolicy()
	policy.HashCost = bcrypt.MinCost
	notifier := &captureNotifier{}
	return &DefaultOtpIssuer{Repo: stores.Otps, Notifier: notifier, Policy: policy, Now: clk.Now}, clk, notifier
}

func TestIssueStoresOnlyHash(t *testing.T) {
	issuer, clk, _ := newIssuer(t)
	issued, err := issuer.Issue(context.Background(), "req-1")
	require.NoError(t, err)

	assert.Regexp(t, `^[A-Z2-7]{8}$`, issued.Code)
	assert.NotContains(t, issued.Session.CodeHash, issued.Code)
	assert.Equal(t, clk.t.Add(15*time.Minute), issued.Session.ExpiresAt)
	assert.Equal(t, clk.t.Add(30*time.Second), issued.Session.ResendCooldownUntil)
	assert.Equal(t, 5, issued.Session.AttemptsRemaining)
	assert.Equal(t, 1, issued.Session.Seq)
}

func TestVerifyOutcomes(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := newIssuer(t)
	issued, err := issuer.Issue(ctx, "req-1")
	require.NoError(t, err)

	res, err := issuer.Verify(ctx, "req-1", "WRONG123")
	require.NoError(t, err)
	assert.Equal(t, VerifyResult{Status: VerifyInvalid, AttemptsRemaining: 4}, res)

	// codes are matched case-insensitively
	res, err = issuer.Verify(ctx, "req-1", " "+toLower(issued.Code)+" ")
	require.NoError(t, err)
	assert.Equal(t, VerifyOK, res.Status)

	res, err = issuer.Verify(ctx, "req-1", issued.Code)
	require.NoError(t, err)
	assert.Equal(t, VerifyConsumed, res.Status)

	res, err = issuer.Verify(ctx, "unknown", issued.Code)
	require.NoError(t, err)
	assert.Equal(t, VerifyExpired, res.Status)
}

func TestFifthWrongAttemptLocks(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := newIssuer(t)
	issued, err := issuer.Issue(ctx, "req-1")
	require.NoError(t, err)

	for want := 4; want >= 1; want-- {
		res, err := issuer.Verify(ctx, "req-1", "WRONG123")
		require.NoError(t, err)
		assert.Equal(t, want, res.AttemptsRemaining)
	}
	res, err := issuer.Verify(ctx, "req-1", "WRONG123")
	require.NoError(t, err)
	assert.Equal(t, VerifyLocked, res.Status)

	// even the right code is refused until a resend
	res, err = issuer.Verify(ctx, "req-1", issued.Code)
	require.NoError(t, err)
	assert.Equal(t, VerifyLocked, res.Status)
}

func TestCodeExpires(t *testing.T) {
	ctx := context.Background()
	issuer, clk, _ := newIssuer(t)
	issued, err := issuer.Issue(ctx, "req-1")
	require.NoError(t, err)

	clk.Advance(15*time.Minute + time.Second)
	res, err := issuer.Verify(ctx, "req-1", issued.Code)
	require.NoError(t, err)
	assert.Equal(t, VerifyExpired, res.Status)
}

func TestResendCooldownAndInvalidation(t *testing.T) {
	ctx := context.Background()
	issuer, clk, _ := newIssuer(t)
	first, err := issuer.Issue(ctx, "req-1")
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	_, err = issuer.Resend(ctx, "req-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCooldownActive))
	appErr, _ := models.AsAppError(err)
	require.NotNil(t, appErr.RetryAt)
	assert.True(t, first.Session.ResendCooldownUntil.Equal(*appErr.RetryAt))

	clk.Advance(25 * time.Second)
	second, err := issuer.Resend(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Session.Seq)

	// the first code is dead although its 15 minutes have not run out
	res, err := issuer.Verify(ctx, "req-1", first.Code)
	require.NoError(t, err)
	if first.Code == second.Code {
		t.Skip("random codes collided")
	}
	assert.Equal(t, VerifyInvalid, res.Status)

	res, err = issuer.Verify(ctx, "req-1", second.Code)
	require.NoError(t, err)
	assert.Equal(t, VerifyOK, res.Status)
}

func TestDeliverUsesNotifier(t *testing.T) {
	issuer, _, notifier := newIssuer(t)
	issued, err := issuer.Issue(context.Background(), "req-1")
	require.NoError(t, err)

	issuer.Deliver("+254711000000", issued)
	issuer.Wait()

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "+254711000000", notifier.sent[0].phone)
	assert.Contains(t, notifier.sent[0].message, issued.Code)
	assert.Contains(t, notifier.sent[0].message, "15 minutes")
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
