package panelclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"vpn-access-bot/internal/config"
	"vpn-access-bot/internal/errors"
	"vpn-access-bot/internal/models"
)

func newClientSettings(email, tgID string) models.ClientSettings {
	return models.ClientSettings{
		ID:     models.NewClientID(),
		Email:  email,
		Enable: true,
		TgID:   tgID,
		SubID:  models.NewSubID(),
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakePanel is an httptest stand-in for the panel: /login hands out a
// session cookie, API routes check it.
type fakePanel struct {
	mux          *http.ServeMux
	server       *httptest.Server
	loginCount   int32
	rejectOnce   int32
	listResponse string
}

func newFakePanel(t *testing.T) *fakePanel {
	t.Helper()

	p := &fakePanel{
		mux:          http.NewServeMux(),
		listResponse: `{"success": true, "obj": [{"id": 1, "remark": "main", "port": 443, "protocol": "vless"}]}`,
	}

	p.mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.loginCount, 1)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["username"] != "admin" || body["password"] != "secret" {
			fmt.Fprint(w, `{"success": false, "msg": "invalid credentials"}`)
			return
		}

		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "session-token"})
		fmt.Fprint(w, `{"success": true}`)
	})

	p.mux.HandleFunc("/panel/api/inbounds/list", func(w http.ResponseWriter, r *http.Request) {
		if !p.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if atomic.CompareAndSwapInt32(&p.rejectOnce, 1, 0) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, p.listResponse)
	})

	p.server = httptest.NewServer(p.mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePanel) authorized(r *http.Request) bool {
	cookie, err := r.Cookie("3x-ui")
	return err == nil && cookie.Value == "session-token"
}

func (p *fakePanel) config() config.PanelConfig {
	return config.PanelConfig{
		BaseURL:  p.server.URL,
		Username: "admin",
		Password: "secret",
		APIPath:  "/panel/api",
	}
}

func newPanelClient(t *testing.T, cfg config.PanelConfig) *Client {
	t.Helper()
	client, err := NewClient(cfg, testLogger())
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	var cfgErr *errors.ConfigError

	_, err := NewClient(config.PanelConfig{Username: "a", Password: "b"}, testLogger())
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewClient(config.PanelConfig{BaseURL: "https://panel.example.com"}, testLogger())
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoginSessionReuse(t *testing.T) {
	panel := newFakePanel(t)
	client := newPanelClient(t, panel.config())

	for i := 0; i < 3; i++ {
		inbounds, err := client.ListInbounds(context.Background())
		require.NoError(t, err)
		require.Len(t, inbounds, 1)
		require.Equal(t, "main", inbounds[0].Remark)
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&panel.loginCount))
}

func TestLoginRejectedCredentials(t *testing.T) {
	panel := newFakePanel(t)
	cfg := panel.config()
	cfg.Password = "wrong"
	client := newPanelClient(t, cfg)

	var authErr *errors.AuthError
	require.ErrorAs(t, client.Login(context.Background()), &authErr)
}

func TestExpiredSessionRetriesOnce(t *testing.T) {
	panel := newFakePanel(t)
	client := newPanelClient(t, panel.config())

	// Warm the session, then have the panel reject it once.
	_, err := client.ListInbounds(context.Background())
	require.NoError(t, err)
	atomic.StoreInt32(&panel.rejectOnce, 1)

	inbounds, err := client.ListInbounds(context.Background())
	require.NoError(t, err)
	require.Len(t, inbounds, 1)
	require.Equal(t, int32(2), atomic.LoadInt32(&panel.loginCount))
}

func TestGetInboundMissing(t *testing.T) {
	panel := newFakePanel(t)
	panel.mux.HandleFunc("/panel/api/inbounds/get/99", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true, "obj": null}`)
	})
	client := newPanelClient(t, panel.config())

	inbound, err := client.GetInbound(context.Background(), 99)
	require.NoError(t, err)
	require.Nil(t, inbound)
}

func TestGetInboundFound(t *testing.T) {
	panel := newFakePanel(t)
	panel.mux.HandleFunc("/panel/api/inbounds/get/5", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true, "obj": {
			"id": 5,
			"port": 443,
			"protocol": "vless",
			"settings": "{\"clients\": [{\"id\": \"abc\", \"email\": \"tg_1\", \"tgId\": 1}]}",
			"streamSettings": "{\"network\": \"tcp\", \"security\": \"reality\"}"
		}}`)
	})
	client := newPanelClient(t, panel.config())

	inbound, err := client.GetInbound(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, inbound)
	require.Equal(t, 443, inbound.Port)

	clients := inbound.ClientSettings().Clients
	require.Len(t, clients, 1)
	require.Equal(t, "tg_1", clients[0].Email)
	require.True(t, clients[0].TgID.Equals(1))
	require.Equal(t, "reality", inbound.StreamConfig().Security)
}

func TestAddClientPayloadShape(t *testing.T) {
	panel := newFakePanel(t)
	var captured map[string]interface{}
	panel.mux.HandleFunc("/panel/api/inbounds/addClient", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"success": true}`)
	})
	client := newPanelClient(t, panel.config())

	settings := newClientSettings("tg_1", "1")
	require.NoError(t, client.AddClient(context.Background(), 5, settings))

	require.Equal(t, float64(5), captured["id"])

	// The panel wants the client list as a JSON string, not an object.
	embedded, ok := captured["settings"].(string)
	require.True(t, ok)
	var inner struct {
		Clients []map[string]interface{} `json:"clients"`
	}
	require.NoError(t, json.Unmarshal([]byte(embedded), &inner))
	require.Len(t, inner.Clients, 1)
	require.Equal(t, "tg_1", inner.Clients[0]["email"])
}

func TestUpdateClientUsesClientIDPath(t *testing.T) {
	panel := newFakePanel(t)
	var path string
	panel.mux.HandleFunc("/panel/api/inbounds/updateClient/", func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `{"success": true}`)
	})
	client := newPanelClient(t, panel.config())

	settings := newClientSettings("tg_1", "1")
	require.NoError(t, client.UpdateClient(context.Background(), "client-uuid", 5, settings))
	require.Equal(t, "/panel/api/inbounds/updateClient/client-uuid", path)
}

func TestUnsuccessfulEnvelopeSurfacesMessage(t *testing.T) {
	panel := newFakePanel(t)
	panel.listResponse = `{"success": false, "msg": "database locked"}`
	client := newPanelClient(t, panel.config())

	_, err := client.ListInbounds(context.Background())
	var upstream *errors.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Contains(t, upstream.Error(), "database locked")
}
