package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vpn-access-bot/internal/config"
	"vpn-access-bot/internal/errors"
	"vpn-access-bot/internal/links"
	"vpn-access-bot/internal/models"
)

// PanelAPI is the subset of the panel client the issuer depends on
type PanelAPI interface {
	ListInbounds(ctx context.Context) ([]models.Inbound, error)
	GetInbound(ctx context.Context, inboundID int) (*models.Inbound, error)
	AddClient(ctx context.Context, inboundID int, settings models.ClientSettings) error
	UpdateClient(ctx context.Context, clientID string, inboundID int, settings models.ClientSettings) error
}

// issuerStore is the persistence surface the issuer writes to after a
// fully successful panel round-trip
type issuerStore interface {
	SetUserKey(key models.UserKey) error
	SetSubscription(userID int64, expiresAt, planCode string) error
}

// Issuer orchestrates one access issuance end to end: plan resolution,
// inbound discovery, client upsert across every target inbound, URI
// construction and local persistence.
type Issuer struct {
	cfg       *config.Config
	store     issuerStore
	panel     func() (PanelAPI, error)
	logger    *logrus.Logger
	userLocks sync.Map
}

// NewIssuer creates a new issuer. The panel provider is called lazily
// on first use so a misconfigured panel only fails operations that
// actually need it.
func NewIssuer(cfg *config.Config, store issuerStore, panel func() (PanelAPI, error), logger *logrus.Logger) *Issuer {
	return &Issuer{
		cfg:    cfg,
		store:  store,
		panel:  panel,
		logger: logger,
	}
}

// IssueAccess provisions or refreshes access for a user under the given
// plan. Repeat calls for the same user converge to the same client
// identity; only the expiry advances.
func (s *Issuer) IssueAccess(ctx context.Context, userID int64, planCode string) (*models.IssuedCredential, error) {
	days, ok := s.cfg.Plans[planCode]
	if !ok {
		return nil, &errors.InvalidPlanError{PlanCode: planCode}
	}
	if userID <= 0 {
		return nil, fmt.Errorf("user id must be positive, got %d", userID)
	}

	// Serialize issuance per user: two concurrent calls must not both
	// decide "no existing client" and mint two identities.
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	panel, err := s.panel()
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolveInbounds(ctx, panel)
	if err != nil {
		return nil, err
	}

	primary := resolved[0]
	existing, found := findExistingClient(primary.ClientSettings().Clients, userID)

	clientID := models.NewClientID()
	email := models.ClientLabel(userID)
	subID := models.NewSubID()
	flow := s.cfg.Panel.Flow
	if found {
		if existing.ID != "" {
			clientID = existing.ID
		}
		if existing.Email != "" {
			email = existing.Email
		}
		if existing.SubID != "" {
			subID = existing.SubID
		}
		if flow == "" {
			flow = existing.Flow
		}
	}

	expires := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)

	settings := models.ClientSettings{
		ID:         clientID,
		Email:      email,
		LimitIP:    s.cfg.Panel.LimitIP,
		TotalGB:    s.cfg.Panel.TotalGB,
		ExpiryTime: expires.UnixMilli(),
		Enable:     true,
		Flow:       flow,
		TgID:       fmt.Sprintf("%d", userID),
		SubID:      subID,
	}

	// Panel state may have diverged per inbound, so each inbound is
	// matched against its own client list before choosing add vs update.
	for i := range resolved {
		inbound := &resolved[i]
		local, localFound := findExistingClient(inbound.ClientSettings().Clients, userID)
		if localFound {
			localID := local.ID
			if localID == "" {
				localID = clientID
			}
			err = panel.UpdateClient(ctx, localID, inbound.ID, settings)
		} else {
			err = panel.AddClient(ctx, inbound.ID, settings)
		}
		if err != nil {
			return nil, err
		}
	}

	host := links.PublicHost(s.cfg.Panel.BaseURL, s.cfg.Panel.PublicHost)
	vlessURI := links.BuildVlessURI(&primary, clientID, email, host, flow, s.cfg.Panel.PublicPort)

	subBase := s.cfg.Panel.SubBaseURL
	if subBase == "" {
		subBase = s.cfg.Panel.BaseURL
	}
	subURL := links.BuildSubURL(subBase, subID)

	// Persistence happens strictly after every panel call succeeded.
	if err := s.store.SetUserKey(models.UserKey{
		UserID:   userID,
		VlessURI: vlessURI,
		SubURL:   subURL,
		ClientID: clientID,
		Email:    email,
		SubID:    subID,
	}); err != nil {
		return nil, err
	}
	if err := s.store.SetSubscription(userID, expires.Format(time.RFC3339), planCode); err != nil {
		return nil, err
	}

	s.logger.Infof("Issued access for user %d: plan %s, expires %s", userID, planCode, expires.Format(time.RFC3339))

	return &models.IssuedCredential{
		VlessURI: vlessURI,
		SubURL:   subURL,
		ClientID: clientID,
		Email:    email,
		SubID:    subID,
	}, nil
}

// ListInbounds lists the panel's inbounds for diagnostics
func (s *Issuer) ListInbounds(ctx context.Context) ([]models.Inbound, error) {
	panel, err := s.panel()
	if err != nil {
		return nil, err
	}
	return panel.ListInbounds(ctx)
}

// resolveInbounds fetches the configured target inbounds in order.
// Unresolvable inbounds are skipped; an empty result is fatal.
func (s *Issuer) resolveInbounds(ctx context.Context, panel PanelAPI) ([]models.Inbound, error) {
	var resolved []models.Inbound
	for _, id := range s.cfg.Panel.InboundIDs {
		inbound, err := panel.GetInbound(ctx, id)
		if err != nil {
			return nil, err
		}
		if inbound == nil {
			s.logger.Warnf("Inbound %d not found on panel, skipping", id)
			continue
		}
		resolved = append(resolved, *inbound)
	}
	if len(resolved) == 0 {
		return nil, &errors.NoInboundsError{InboundIDs: s.cfg.Panel.InboundIDs}
	}
	return resolved, nil
}

// findExistingClient matches a user inside an inbound's client list by
// display label or by Telegram id tag
func findExistingClient(clients []models.InboundClient, userID int64) (models.InboundClient, bool) {
	label := models.ClientLabel(userID)
	for _, client := range clients {
		if client.Email == label || client.TgID.Equals(userID) {
			return client, true
		}
	}
	return models.InboundClient{}, false
}

// lockFor returns the mutex serializing issuance for one user
func (s *Issuer) lockFor(userID int64) *sync.Mutex {
	lock, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
