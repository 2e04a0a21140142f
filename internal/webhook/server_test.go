package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"vpn-access-bot/internal/config"
	"vpn-access-bot/internal/models"
)

type issueCall struct {
	userID   int64
	planCode string
}

type fakeIssuer struct {
	calls []issueCall
	fail  bool
}

func (f *fakeIssuer) IssueAccess(ctx context.Context, userID int64, planCode string) (*models.IssuedCredential, error) {
	f.calls = append(f.calls, issueCall{userID, planCode})
	if f.fail {
		return nil, fmt.Errorf("panel unreachable")
	}
	return &models.IssuedCredential{
		VlessURI: "vless://id@host:443?type=tcp#tg_1",
		SubURL:   "https://panel.example.com/sub/abcd",
		ClientID: "id",
		Email:    fmt.Sprintf("tg_%d", userID),
		SubID:    "abcd",
	}, nil
}

type fakeSender struct {
	delivered []int64
}

func (f *fakeSender) SendIssued(userID int64, cred *models.IssuedCredential) error {
	f.delivered = append(f.delivered, userID)
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(cfg config.WebhookConfig) (*Server, *fakeIssuer, *fakeSender) {
	issuer := &fakeIssuer{}
	sender := &fakeSender{}
	return NewServer(cfg, issuer, sender, testLogger()), issuer, sender
}

func post(router http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	server, _, _ := newTestServer(config.WebhookConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentTokenRequired(t *testing.T) {
	server, issuer, _ := newTestServer(config.WebhookConfig{Token: "hunter2"})
	router := server.Router()

	body := `{"user_id": 42, "plan": "1m"}`

	rec := post(router, "/payment/paid", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(router, "/payment/paid", body, map[string]string{"X-Webhook-Token": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, issuer.calls)

	rec = post(router, "/payment/paid", body, map[string]string{"X-Webhook-Token": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []issueCall{{42, "1m"}}, issuer.calls)
}

func TestPaymentTokenViaQuery(t *testing.T) {
	server, issuer, _ := newTestServer(config.WebhookConfig{Token: "hunter2"})

	rec := post(server.Router(), "/payment/paid?token=hunter2", `{"user_id": 42, "plan": "1m"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, issuer.calls, 1)
}

func TestPaymentMetadataFallback(t *testing.T) {
	server, issuer, sender := newTestServer(config.WebhookConfig{})
	router := server.Router()

	// Provider wraps the useful fields in object.metadata.
	body := `{"event": "payment.succeeded", "object": {"metadata": {"user_id": "7", "plan": "3m"}}}`
	rec := post(router, "/payment/paid", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []issueCall{{7, "3m"}}, issuer.calls)
	require.Equal(t, []int64{7}, sender.delivered)
}

func TestPaymentIgnoresNonSuccessEvent(t *testing.T) {
	server, issuer, _ := newTestServer(config.WebhookConfig{})

	body := `{"event": "payment.canceled", "user_id": 42, "plan": "1m"}`
	rec := post(server.Router(), "/payment/paid", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ignored")
	require.Empty(t, issuer.calls)
}

func TestPaymentMissingFields(t *testing.T) {
	server, issuer, _ := newTestServer(config.WebhookConfig{})

	rec := post(server.Router(), "/payment/paid", `{"event": "paid"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, issuer.calls)
}

func TestPaymentIssueFailure(t *testing.T) {
	server, issuer, sender := newTestServer(config.WebhookConfig{})
	issuer.fail = true

	rec := post(server.Router(), "/payment/paid", `{"user_id": 42, "plan": "1m"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, sender.delivered)
}

func tributeSign(key, body string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestTributeSignature(t *testing.T) {
	server, issuer, _ := newTestServer(config.WebhookConfig{
		TributeAPIKey:  "api-key",
		TributeDefault: "1m",
	})
	router := server.Router()

	body := `{"payload": {"telegram_user_id": 99}}`

	rec := post(router, "/payment/tribute", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(router, "/payment/tribute", body, map[string]string{"trbt-signature": "deadbeef"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, issuer.calls)

	rec = post(router, "/payment/tribute", body, map[string]string{
		"trbt-signature": tributeSign("api-key", body),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []issueCall{{99, "1m"}}, issuer.calls)
}

func TestTributeProductMapping(t *testing.T) {
	server, issuer, _ := newTestServer(config.WebhookConfig{
		TributeDefault:    "1m",
		TributeProductMap: map[string]string{"3001": "12m"},
	})

	body := `{"payload": {"telegram_user_id": 99, "product_id": 3001}}`
	rec := post(server.Router(), "/payment/tribute", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []issueCall{{99, "12m"}}, issuer.calls)
}

func TestTributeMissingUserID(t *testing.T) {
	server, issuer, _ := newTestServer(config.WebhookConfig{TributeDefault: "1m"})

	rec := post(server.Router(), "/payment/tribute", `{"payload": {"amount": 500}}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, issuer.calls)
}
