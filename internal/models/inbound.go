package models

import (
	"encoding/json"
	"strconv"
)

// Inbound represents an upstream panel inbound configuration.
// The panel embeds settings and streamSettings as JSON strings inside
// the inbound object; some panel builds return them as objects instead,
// so both fields are kept raw and decoded on demand.
type Inbound struct {
	ID             int             `json:"id"`
	Remark         string          `json:"remark"`
	Enable         bool            `json:"enable"`
	Port           int             `json:"port"`
	Protocol       string          `json:"protocol"`
	Settings       json.RawMessage `json:"settings"`
	StreamSettings json.RawMessage `json:"streamSettings"`
}

// InboundSettings represents the decoded client list of an inbound
type InboundSettings struct {
	Clients []InboundClient `json:"clients"`
}

// InboundClient represents one client entry inside an inbound's settings
type InboundClient struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Flow       string `json:"flow"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	TgID       FlexID `json:"tgId"`
	SubID      string `json:"subId"`
}

// StreamConfig represents the decoded transport settings of an inbound
type StreamConfig struct {
	Network  string        `json:"network"`
	Security string        `json:"security"`
	Reality  RealityConfig `json:"realitySettings"`
}

// RealityConfig represents Reality security parameters
type RealityConfig struct {
	PublicKey   string   `json:"publicKey"`
	Fingerprint string   `json:"fingerprint"`
	ServerNames []string `json:"serverNames"`
	ShortIDs    []string `json:"shortIds"`
	SpiderX     string   `json:"spiderX"`
}

// ClientSettings decodes the inbound's client list. A malformed settings
// blob yields an empty list rather than an error: an inbound without
// parseable clients simply has no existing client to match.
func (i *Inbound) ClientSettings() InboundSettings {
	var settings InboundSettings
	_ = decodeEmbedded(i.Settings, &settings)
	return settings
}

// StreamConfig decodes the inbound's transport settings
func (i *Inbound) StreamConfig() StreamConfig {
	cfg := StreamConfig{Network: "tcp", Security: "none"}
	_ = decodeEmbedded(i.StreamSettings, &cfg)
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.Security == "" {
		cfg.Security = "none"
	}
	return cfg
}

// decodeEmbedded unmarshals a field that the panel serializes either as
// a JSON object or as a JSON string containing an object
func decodeEmbedded(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var embedded string
		if err := json.Unmarshal(raw, &embedded); err != nil {
			return err
		}
		if embedded == "" {
			return nil
		}
		return json.Unmarshal([]byte(embedded), v)
	}
	return json.Unmarshal(raw, v)
}

// FlexID is an identifier the panel serializes either as a JSON number
// or as a string
type FlexID string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// MarshalJSON implements json.Marshaler
func (f FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// Equals reports whether the identifier matches the given numeric id
func (f FlexID) Equals(id int64) bool {
	return string(f) == strconv.FormatInt(id, 10)
}
