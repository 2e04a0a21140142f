// Package links builds shareable connection strings from panel inbound
// configuration. All functions are pure: identical inputs produce
// byte-identical output.
package links

import (
	"fmt"
	"net/url"
	"strings"

	"vpn-access-bot/internal/models"
)

// queryParam is one key/value pair in a connection URI query string.
// Order matters for determinism, so params are kept as a slice.
type queryParam struct {
	key   string
	value string
}

// BuildVlessURI builds a vless connection URI for a client on the given
// inbound. publicPort overrides the inbound's configured port when
// positive.
func BuildVlessURI(inbound *models.Inbound, clientID, email, host, flow string, publicPort int) string {
	stream := inbound.StreamConfig()

	params := []queryParam{
		{"type", stream.Network},
		{"encryption", "none"},
	}
	if flow != "" {
		params = append(params, queryParam{"flow", flow})
	}

	switch stream.Security {
	case "reality":
		reality := stream.Reality
		fingerprint := reality.Fingerprint
		if fingerprint == "" {
			fingerprint = "chrome"
		}
		spiderX := reality.SpiderX
		if spiderX == "" {
			spiderX = "/"
		}
		params = append(params,
			queryParam{"security", "reality"},
			queryParam{"pbk", reality.PublicKey},
			queryParam{"fp", fingerprint},
		)
		if len(reality.ServerNames) > 0 {
			params = append(params, queryParam{"sni", reality.ServerNames[0]})
		}
		if len(reality.ShortIDs) > 0 {
			params = append(params, queryParam{"sid", reality.ShortIDs[0]})
		}
		params = append(params, queryParam{"spx", spiderX})
	case "tls":
		params = append(params, queryParam{"security", "tls"})
	}

	port := inbound.Port
	if publicPort > 0 {
		port = publicPort
	}

	return fmt.Sprintf("vless://%s@%s:%d?%s#%s", clientID, host, port, encodeQuery(params), email)
}

// BuildSubURL builds the subscription URL for a grouping identifier
func BuildSubURL(base, subID string) string {
	return fmt.Sprintf("%s/sub/%s", strings.TrimRight(base, "/"), subID)
}

// PublicHost returns the host clients should connect to: the explicit
// override when set, otherwise the host of the panel base URL.
func PublicHost(baseURL, override string) string {
	if override != "" {
		return override
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// encodeQuery percent-encodes params in order. Spaces become %20 and
// colons stay literal; everything else follows standard query escaping.
func encodeQuery(params []queryParam) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p.key)
		sb.WriteByte('=')
		sb.WriteString(escapeValue(p.value))
	}
	return sb.String()
}

func escapeValue(v string) string {
	escaped := url.QueryEscape(v)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	escaped = strings.ReplaceAll(escaped, "%3A", ":")
	return escaped
}
