package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vpn-access-bot/internal/constants"
)

// ClientSettings is the client payload sent to the panel on add/update.
// Optional fields are omitted from the serialized form when absent.
type ClientSettings struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	Flow       string `json:"flow,omitempty"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
}

// IssuedCredential is the result of one issuance call
type IssuedCredential struct {
	VlessURI string
	SubURL   string
	ClientID string
	Email    string
	SubID    string
}

// ClientLabel derives the panel-side display label for a user
func ClientLabel(userID int64) string {
	return fmt.Sprintf("%s%d", constants.LabelPrefix, userID)
}

// NewClientID generates a fresh client identifier
func NewClientID() string {
	return uuid.NewString()
}

// NewSubID generates a random subscription grouping identifier
func NewSubID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:constants.SubIDLength]
}
