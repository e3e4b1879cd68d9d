// Package fingerprint derives device identifiers and descriptive device
// metadata from request context.
package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

const (
	unknown     = "unknown"
	idLength    = 16
	localLabel  = "Local Network"
	remoteLabel = "Unknown Location"
)

// Context is the client information a request carries.
type Context struct {
	UserAgent string
	IP        string
}

// Fingerprint returns the first 16 characters of base64(SHA-256("ua|ip")).
// Missing parts are replaced with "unknown" so absent headers still produce
// a stable value.
func Fingerprint(userAgent, ip string) string {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = unknown
	}
	if strings.TrimSpace(ip) == "" {
		ip = unknown
	}
	sum := sha256.Sum256([]byte(userAgent + "|" + ip))
	return base64.StdEncoding.EncodeToString(sum[:])[:idLength]
}

// Of is Fingerprint for a Context.
func (c Context) Of() string {
	return Fingerprint(c.UserAgent, c.IP)
}

// FromRequest extracts the client IP and User-Agent from r.
func FromRequest(r *http.Request) Context {
	return Context{UserAgent: r.UserAgent(), IP: ClientIP(r)}
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Location labels private and loopback addresses as the local network.
// Anything else is reported as unknown; no geo lookup is performed.
func Location(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return remoteLabel
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast() {
		return localLabel
	}
	return remoteLabel
}

// DeviceInfo is a human-readable description of a client.
type DeviceInfo struct {
	Name           string `json:"device_name"`
	Type           string `json:"device_type"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"operating_system"`
}

// Detect parses a User-Agent header into DeviceInfo. Parsing is done by
// mssola/useragent; the labels it yields are folded into the fixed
// vocabulary the session listings use.
func Detect(userAgent string) DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceInfo{
			Name:           "Unknown Device",
			Type:           "Unknown",
			Browser:        "Unknown Browser",
			BrowserVersion: "Unknown",
			OS:             "Unknown OS",
		}
	}

	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	if name == "" {
		name = "Unknown Browser"
	}
	if version == "" {
		version = "Unknown"
	}

	info := DeviceInfo{
		Browser:        name,
		BrowserVersion: version,
		OS:             operatingSystem(ua),
		Type:           deviceType(ua, userAgent),
	}
	info.Name = deviceName(info.OS, info.Type)
	return info
}

func operatingSystem(ua *useragent.UserAgent) string {
	os := ua.OS()
	switch {
	case strings.HasPrefix(os, "Windows"):
		return os
	case isApplePortable(ua.Platform()), strings.Contains(os, "iPhone OS"):
		return "iOS"
	case strings.Contains(os, "Mac OS X"):
		return "macOS"
	case strings.HasPrefix(os, "Android"):
		return "Android"
	case strings.Contains(os, "Linux"):
		return "Linux"
	default:
		return "Unknown OS"
	}
}

func isApplePortable(platform string) bool {
	return platform == "iPhone" || platform == "iPad" || platform == "iPod"
}

func deviceType(ua *useragent.UserAgent, raw string) string {
	switch {
	case ua.Bot():
		return "Bot"
	case ua.Platform() == "iPad", strings.Contains(raw, "Tablet"):
		return "Tablet"
	case strings.HasPrefix(ua.OS(), "Android") && !ua.Mobile():
		return "Tablet"
	case ua.Mobile():
		return "Mobile"
	default:
		return "Desktop"
	}
}

func deviceName(os, kind string) string {
	switch kind {
	case "Bot":
		return "Crawler"
	case "Mobile":
		switch os {
		case "iOS":
			return "iPhone"
		case "Android":
			return "Android Phone"
		}
		return "Mobile Device"
	case "Tablet":
		switch os {
		case "iOS":
			return "iPad"
		case "Android":
			return "Android Tablet"
		}
		return "Tablet"
	default:
		return os + " Computer"
	}
}
