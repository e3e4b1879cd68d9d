package refresh

import (
	"strconv"
	"time"
)

// Record is the persisted state of one refresh token. SecretHash is the hex
// SHA-256 of the current secret.
type Record struct {
	ID          string
	UserID      string
	SessionID   string
	SecretHash  string
	Fingerprint string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastUsedAt  time.Time
	RevokedAt   time.Time
	RememberMe  bool
	Active      bool
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *Record) fields() []interface{} {
	return []interface{}{
		"id", r.ID,
		"user_id", r.UserID,
		"session_id", r.SessionID,
		"secret_hash", r.SecretHash,
		"fingerprint", r.Fingerprint,
		"ip", r.IPAddress,
		"ua", r.UserAgent,
		"created_at", millis(r.CreatedAt),
		"expires_at", millis(r.ExpiresAt),
		"last_used_at", millis(r.LastUsedAt),
		"remember_me", boolFlag(r.RememberMe),
		"active", boolFlag(r.Active),
	}
}

func recordFromHash(h map[string]string) (*Record, bool) {
	if h["id"] == "" {
		return nil, false
	}
	return &Record{
		ID:          h["id"],
		UserID:      h["user_id"],
		SessionID:   h["session_id"],
		SecretHash:  h["secret_hash"],
		Fingerprint: h["fingerprint"],
		IPAddress:   h["ip"],
		UserAgent:   h["ua"],
		CreatedAt:   fromMillis(h["created_at"]),
		ExpiresAt:   fromMillis(h["expires_at"]),
		LastUsedAt:  fromMillis(h["last_used_at"]),
		RevokedAt:   fromMillis(h["revoked_at"]),
		RememberMe:  h["remember_me"] == "1",
		Active:      h["active"] == "1",
	}, true
}

// recordFromReply decodes an HGETALL reply returned from a script.
func recordFromReply(reply []interface{}) (*Record, bool) {
	h := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, _ := reply[i].(string)
		v, _ := reply[i+1].(string)
		h[k] = v
	}
	return recordFromHash(h)
}

func millis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func fromMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
