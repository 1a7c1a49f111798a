package transport

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/hammamikhairi/tabkha/internal/domain"
)

// ParseFrame decodes one inbound payload. Payloads that are not JSON
// objects or lack a type tag are malformed. Unknown types decode fine and
// are left for the caller to ignore.
func ParseFrame(data []byte) (*domain.Frame, error) {
	var f domain.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", domain.ErrMalformedFrame)
	}
	return &f, nil
}

// EncodeHandshake builds the first outbound frame.
func EncodeHandshake(identity string, mode domain.Mode) ([]byte, error) {
	return json.Marshal(domain.Handshake{Email: identity, Mode: mode})
}

// URL derives the websocket endpoint from the backend's HTTP base URL.
// http becomes ws and https becomes wss; ws/wss are kept as is.
func URL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing backend url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	if path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return u.String(), nil
}
