package transport

import (
	"fmt"
	"net/url"
)

// DefaultPath is the agent chat socket path on the serving host.
const DefaultPath = "/ws/chat"

// Endpoint derives the socket URL from the page URL the client was served from.
// https pages get wss, http pages get ws. A ws/wss URL with a path is used as is
// when path is empty.
func Endpoint(pageURL, path string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid page url %q: missing host", pageURL)
	}

	var scheme string
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("invalid page url %q: unsupported scheme %q", pageURL, u.Scheme)
	}

	direct := u.Scheme == "ws" || u.Scheme == "wss"
	if path == "" {
		path = DefaultPath
		if direct && u.Path != "" && u.Path != "/" {
			path = u.Path
		}
	}

	out := &url.URL{Scheme: scheme, Host: u.Host, Path: path}
	if direct {
		out.RawQuery = u.RawQuery
	}
	return out.String(), nil
}
