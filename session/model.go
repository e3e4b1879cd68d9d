package session

import (
	"strconv"
	"time"

	"github.com/aqryuz/authcore/fingerprint"
)

// Session is one device login.
type Session struct {
	ID           string
	UserID       string
	Device       fingerprint.DeviceInfo
	IPAddress    string
	UserAgent    string
	Location     string
	Active       bool
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	RevokedAt    time.Time
	RevokedBy    string
	RevokeReason string
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) fields() []interface{} {
	return []interface{}{
		"id", s.ID,
		"user_id", s.UserID,
		"device_name", s.Device.Name,
		"device_type", s.Device.Type,
		"browser", s.Device.Browser,
		"browser_version", s.Device.BrowserVersion,
		"os", s.Device.OS,
		"ip", s.IPAddress,
		"ua", s.UserAgent,
		"location", s.Location,
		"active", "1",
		"created_at", strconv.FormatInt(s.CreatedAt.UnixMilli(), 10),
		"last_activity", strconv.FormatInt(s.LastActivity.UnixMilli(), 10),
		"expires_at", strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10),
	}
}

func fromHash(h map[string]string) (*Session, bool) {
	if h["id"] == "" {
		return nil, false
	}
	return &Session{
		ID:     h["id"],
		UserID: h["user_id"],
		Device: fingerprint.DeviceInfo{
			Name:           h["device_name"],
			Type:           h["device_type"],
			Browser:        h["browser"],
			BrowserVersion: h["browser_version"],
			OS:             h["os"],
		},
		IPAddress:    h["ip"],
		UserAgent:    h["ua"],
		Location:     h["location"],
		Active:       h["active"] == "1",
		CreatedAt:    parseMillis(h["created_at"]),
		LastActivity: parseMillis(h["last_activity"]),
		ExpiresAt:    parseMillis(h["expires_at"]),
		RevokedAt:    parseMillis(h["revoked_at"]),
		RevokedBy:    h["revoked_by"],
		RevokeReason: h["revoke_reason"],
	}, true
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
