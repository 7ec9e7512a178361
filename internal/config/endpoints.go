package config

import (
	"net/url"
	"strings"
)

// normalizeBaseURL lower-cases scheme and host and drops a trailing slash.
// Only http and https bases are accepted.
func normalizeBaseURL(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return "", false
	}

	path := strings.TrimRight(parsed.Path, "/")
	return scheme + "://" + strings.ToLower(parsed.Host) + path, true
}

// APIBase returns the normalized base URL for REST calls.
func (c *Config) APIBase() string {
	return c.APIURL
}

// ChannelURL maps the base URL onto the ws/wss scheme and appends the
// channel path.
func (c *Config) ChannelURL() string {
	parsed, err := url.Parse(c.APIURL)
	if err != nil {
		return ""
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + c.ChannelPath
	return parsed.String()
}

// Origin is the scheme://host sent as the Origin header on the channel
// handshake, matching what a browser served from the backend would send.
func (c *Config) Origin() string {
	parsed, err := url.Parse(c.APIURL)
	if err != nil {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
