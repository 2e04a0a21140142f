package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"vpn-access-bot/internal/config"
	"vpn-access-bot/internal/models"
)

// issuerAPI is the issuance entry point the webhook drives
type issuerAPI interface {
	IssueAccess(ctx context.Context, userID int64, planCode string) (*models.IssuedCredential, error)
}

// CredentialSender delivers an issued credential to the paying user
type CredentialSender interface {
	SendIssued(userID int64, cred *models.IssuedCredential) error
}

// Server receives payment provider callbacks, validates them and turns
// them into issuance calls
type Server struct {
	cfg    config.WebhookConfig
	issuer issuerAPI
	sender CredentialSender
	logger *logrus.Logger
	srv    *http.Server
}

// NewServer creates a new webhook server. sender may be nil when no
// delivery channel is configured.
func NewServer(cfg config.WebhookConfig, issuer issuerAPI, sender CredentialSender, logger *logrus.Logger) *Server {
	return &Server{
		cfg:    cfg,
		issuer: issuer,
		sender: sender,
		logger: logger,
	}
}

// Router builds the HTTP routes
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.POST("/payment/paid", s.handlePayment)
	router.POST("/payment/tribute", s.handleTribute)

	return router
}

// Start begins serving in the background
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.Router()}

	go func() {
		s.logger.Infof("Webhook server listening on %s", addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Webhook server failed: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handlePayment handles the generic payment callback. Callers are
// authenticated by a shared token when one is configured.
func (s *Server) handlePayment(c *gin.Context) {
	token := c.GetHeader("X-Webhook-Token")
	if token == "" {
		token = c.Query("token")
	}
	if s.cfg.Token != "" && token != s.cfg.Token {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}

	var data map[string]interface{}
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid json"})
		return
	}

	if !isSuccessEvent(data) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
		return
	}

	userID, planCode, ok := extractPayment(data)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing user_id/plan"})
		return
	}

	s.issueAndRespond(c, userID, planCode)
}

// handleTribute handles Tribute callbacks, verified by an HMAC-SHA256
// signature over the raw body
func (s *Server) handleTribute(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unreadable body"})
		return
	}

	if !s.verifyTributeSignature(raw, c.GetHeader("trbt-signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid json"})
		return
	}

	userID, planCode := s.extractTributePayment(data)
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing telegram_user_id"})
		return
	}

	s.issueAndRespond(c, userID, planCode)
}

// issueAndRespond runs the issuance and delivers the credential
func (s *Server) issueAndRespond(c *gin.Context, userID int64, planCode string) {
	cred, err := s.issuer.IssueAccess(c.Request.Context(), userID, planCode)
	if err != nil {
		s.logger.Errorf("Issue access failed for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	if s.sender != nil {
		if err := s.sender.SendIssued(userID, cred); err != nil {
			s.logger.Errorf("Failed to deliver credential to user %d: %v", userID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// verifyTributeSignature checks the HMAC-SHA256 of the raw body.
// Verification is skipped when no API key is configured.
func (s *Server) verifyTributeSignature(raw []byte, signature string) bool {
	if s.cfg.TributeAPIKey == "" {
		return true
	}
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.cfg.TributeAPIKey))
	mac.Write(raw)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// isSuccessEvent reports whether the callback describes a completed
// payment. Events without a type are accepted.
func isSuccessEvent(data map[string]interface{}) bool {
	event, _ := data["event"].(string)
	if event == "" {
		return true
	}
	event = strings.ToLower(event)
	return strings.Contains(event, "succeed") || strings.Contains(event, "paid")
}

// extractPayment pulls (user_id, plan) from the body, its metadata, or
// a nested object's metadata
func extractPayment(data map[string]interface{}) (int64, string, bool) {
	if userID, plan, ok := paymentPair(data); ok {
		return userID, plan, true
	}
	if meta, ok := data["metadata"].(map[string]interface{}); ok {
		if userID, plan, ok := paymentPair(meta); ok {
			return userID, plan, true
		}
	}
	if obj, ok := data["object"].(map[string]interface{}); ok {
		if meta, ok := obj["metadata"].(map[string]interface{}); ok {
			if userID, plan, ok := paymentPair(meta); ok {
				return userID, plan, true
			}
		}
	}
	return 0, "", false
}

func paymentPair(m map[string]interface{}) (int64, string, bool) {
	userID := asInt64(m["user_id"])
	plan, _ := m["plan"].(string)
	if userID > 0 && plan != "" {
		return userID, plan, true
	}
	return 0, "", false
}

// extractTributePayment pulls the Telegram user id and maps the product
// to a plan code, falling back to the default plan
func (s *Server) extractTributePayment(data map[string]interface{}) (int64, string) {
	payload, _ := data["payload"].(map[string]interface{})

	userID := tributeUserID(payload)
	if userID == 0 {
		userID = tributeUserID(data)
	}

	var productID interface{}
	for _, source := range []map[string]interface{}{payload, data} {
		if source == nil {
			continue
		}
		for _, key := range []string{"product_id", "digital_product_id", "product"} {
			if v, ok := source[key]; ok && v != nil {
				productID = v
				break
			}
		}
		if productID != nil {
			break
		}
	}

	planCode := s.cfg.TributeDefault
	if productID != nil {
		if mapped, ok := s.cfg.TributeProductMap[asString(productID)]; ok {
			planCode = mapped
		}
	}
	return userID, planCode
}

func tributeUserID(m map[string]interface{}) int64 {
	if m == nil {
		return 0
	}
	for _, key := range []string{"telegram_user_id", "telegramUserId", "telegram_user", "user_id"} {
		if id := asInt64(m[key]); id > 0 {
			return id
		}
	}
	return 0
}

func asInt64(v interface{}) int64 {
	switch value := v.(type) {
	case float64:
		return int64(value)
	case string:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0
		}
		return id
	case json.Number:
		id, err := value.Int64()
		if err != nil {
			return 0
		}
		return id
	default:
		return 0
	}
}

func asString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatInt(int64(value), 10)
	default:
		return fmt.Sprintf("%v", value)
	}
}
