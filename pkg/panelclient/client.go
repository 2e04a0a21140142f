package panelclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"vpn-access-bot/internal/config"
	"vpn-access-bot/internal/constants"
	"vpn-access-bot/internal/errors"
	"vpn-access-bot/internal/models"
)

const sessionKey = "session"

// Client is an authenticated HTTP client for the upstream proxy panel.
// Session cookies are held in-process; a 401 triggers exactly one
// re-login and retry before the failure is surfaced.
type Client struct {
	httpClient  *resty.Client
	cfg         config.PanelConfig
	cookieCache *cache.Cache
	loginMu     sync.Mutex
	logger      *logrus.Logger
}

// apiResponse is the panel's response envelope
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// NewClient creates a new panel client. Missing base URL or credentials
// are a permanent configuration failure.
func NewClient(cfg config.PanelConfig, logger *logrus.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &errors.ConfigError{Section: "panel", Message: "base URL is not set"}
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, &errors.ConfigError{Section: "panel", Message: "credentials are not set"}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultTimeout * time.Second
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: !cfg.VerifySSL})

	return &Client{
		httpClient:  httpClient,
		cfg:         cfg,
		cookieCache: cache.New(constants.CacheExpiration*time.Minute, constants.CacheCleanupInterval*time.Minute),
		logger:      logger,
	}, nil
}

var (
	sharedMu     sync.Mutex
	sharedClient *Client
)

// Shared returns the process-wide panel client, constructing it on
// first use. Repeated calls reuse the same session.
func Shared(cfg config.PanelConfig, logger *logrus.Logger) (*Client, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedClient != nil {
		return sharedClient, nil
	}

	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	sharedClient = client
	return sharedClient, nil
}

// Login authenticates against the panel and caches the session cookies.
// A valid cached session is reused without a network call.
func (c *Client) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if _, found := c.cookieCache.Get(sessionKey); found {
		return nil
	}

	c.logger.Infof("Logging in to panel at %s", c.cfg.BaseURL)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"username": c.cfg.Username,
			"password": c.cfg.Password,
		}).
		Post(fmt.Sprintf("%s/login", c.cfg.BaseURL))

	if err != nil {
		return &errors.UpstreamError{Operation: "login", Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		return &errors.AuthError{Message: fmt.Sprintf("login returned status %d", resp.StatusCode())}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return &errors.UpstreamError{Operation: "login", Err: err}
	}

	if !apiResp.Success {
		return &errors.AuthError{Message: apiResp.Msg}
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return &errors.AuthError{Message: "no session cookie received"}
	}

	c.cookieCache.Set(sessionKey, cookies, cache.DefaultExpiration)
	c.logger.Info("Panel login successful")
	return nil
}

// ListInbounds lists the inbounds configured on the panel
func (c *Client) ListInbounds(ctx context.Context) ([]models.Inbound, error) {
	apiResp, err := c.request(ctx, http.MethodGet, "/inbounds/list", nil)
	if err != nil {
		return nil, err
	}
	if !apiResp.Success {
		return nil, &errors.UpstreamError{Operation: "list inbounds", Message: apiResp.Msg}
	}

	var inbounds []models.Inbound
	if len(apiResp.Obj) > 0 {
		if err := json.Unmarshal(apiResp.Obj, &inbounds); err != nil {
			return nil, &errors.UpstreamError{Operation: "list inbounds", Err: err}
		}
	}
	return inbounds, nil
}

// GetInbound fetches one inbound by id. A missing inbound returns
// (nil, nil) rather than an error.
func (c *Client) GetInbound(ctx context.Context, inboundID int) (*models.Inbound, error) {
	apiResp, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/inbounds/get/%d", inboundID), nil)
	if err != nil {
		return nil, err
	}
	if len(apiResp.Obj) == 0 || string(apiResp.Obj) == "null" {
		return nil, nil
	}

	var inbound models.Inbound
	if err := json.Unmarshal(apiResp.Obj, &inbound); err != nil {
		return nil, &errors.UpstreamError{Operation: "get inbound", Err: err}
	}
	return &inbound, nil
}

// AddClient adds a client to an inbound
func (c *Client) AddClient(ctx context.Context, inboundID int, settings models.ClientSettings) error {
	body, err := clientPayload(inboundID, settings)
	if err != nil {
		return err
	}

	c.logger.Infof("Adding client %s to inbound %d", settings.Email, inboundID)

	apiResp, err := c.request(ctx, http.MethodPost, "/inbounds/addClient", body)
	if err != nil {
		return err
	}
	if !apiResp.Success {
		return &errors.UpstreamError{Operation: "add client", Message: apiResp.Msg}
	}
	return nil
}

// UpdateClient updates an existing client on an inbound by its client id
func (c *Client) UpdateClient(ctx context.Context, clientID string, inboundID int, settings models.ClientSettings) error {
	body, err := clientPayload(inboundID, settings)
	if err != nil {
		return err
	}

	c.logger.Infof("Updating client %s on inbound %d", settings.Email, inboundID)

	apiResp, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/inbounds/updateClient/%s", clientID), body)
	if err != nil {
		return err
	}
	if !apiResp.Success {
		return &errors.UpstreamError{Operation: "update client", Message: apiResp.Msg}
	}
	return nil
}

// clientPayload builds the panel's add/update request body, which
// embeds the client list as a JSON string
func clientPayload(inboundID int, settings models.ClientSettings) (map[string]interface{}, error) {
	settingsJSON, err := json.Marshal(map[string]interface{}{
		"clients": []models.ClientSettings{settings},
	})
	if err != nil {
		return nil, &errors.UpstreamError{Operation: "encode client settings", Err: err}
	}
	return map[string]interface{}{
		"id":       inboundID,
		"settings": string(settingsJSON),
	}, nil
}

// request executes an authenticated API call. An unauthenticated
// response clears the session, re-logs in and retries exactly once.
func (c *Client) request(ctx context.Context, method, path string, body interface{}) (*apiResponse, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	resp, err := c.exec(ctx, method, path, body)
	if err != nil {
		return nil, &errors.UpstreamError{Operation: path, Err: err}
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		c.logger.Warnf("Panel session expired, re-authenticating for %s", path)
		c.cookieCache.Delete(sessionKey)
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		resp, err = c.exec(ctx, method, path, body)
		if err != nil {
			return nil, &errors.UpstreamError{Operation: path, Err: err}
		}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &errors.UpstreamError{
			Operation: path,
			Status:    resp.StatusCode(),
			Message:   string(resp.Body()),
		}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return nil, &errors.UpstreamError{Operation: path, Err: err}
	}
	return &apiResp, nil
}

// exec issues one HTTP call with the cached session cookies attached
func (c *Client) exec(ctx context.Context, method, path string, body interface{}) (*resty.Response, error) {
	req := c.httpClient.R().SetContext(ctx)

	if cookies, found := c.cookieCache.Get(sessionKey); found {
		req.SetCookies(cookies.([]*http.Cookie))
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	return req.Execute(method, fmt.Sprintf("%s%s%s", c.cfg.BaseURL, c.cfg.APIPath, path))
}
