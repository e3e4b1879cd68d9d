package authcore

import (
	"time"

	"github.com/aqryuz/authcore/jwt"
	"github.com/aqryuz/authcore/session"
)

// LoginResult is returned by [Engine.Login]. When TOTPRequired is set no
// tokens were issued and the caller must resubmit with a code.
type LoginResult struct {
	UserID       string
	Username     string
	Roles        []string
	TOTPRequired bool

	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string

	// Warnings lists non-fatal problems, for example a session that could
	// not be registered. The tokens are valid either way.
	Warnings []string
}

// RefreshResult is returned by [Engine.Refresh]. The presented refresh
// token is no longer valid once this is returned.
type RefreshResult struct {
	UserID           string
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time

	// DeviceMismatch is set when the token was presented from a different
	// device and the fingerprint policy only logs.
	DeviceMismatch bool
}

// AuthResult is returned by [Engine.Authenticate].
type AuthResult struct {
	UserID    string
	SessionID string
	Roles     []string
	Claims    *jwt.Claims

	// Token is the access token the client should use from now on. It
	// differs from the presented token when Renewed is set.
	Token   string
	Renewed bool
}

// LogoutAllResult counts what [Engine.LogoutAll] revoked.
type LogoutAllResult struct {
	RefreshTokensRevoked int
	SessionsRevoked      int
}

// SessionInfo is the caller-facing view of a registered session.
type SessionInfo struct {
	ID             string
	UserID         string
	DeviceName     string
	DeviceType     string
	Browser        string
	OS             string
	IP             string
	Location       string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	Active         bool
	Current        bool
}

// TOTPEnrollment is the secret and provisioning URI returned once by
// [Engine.BeginTOTPEnrollment].
type TOTPEnrollment struct {
	Secret string
	URI    string
}

// SweepReport counts records removed by one [Engine.Sweep] pass.
type SweepReport struct {
	RefreshTokens int
	Sessions      int
	Revocations   int
}

// HealthStatus reports backend reachability.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

func toSessionInfo(s *session.Session, currentID string) SessionInfo {
	return SessionInfo{
		ID:             s.ID,
		UserID:         s.UserID,
		DeviceName:     s.Device.Name,
		DeviceType:     s.Device.Type,
		Browser:        s.Device.Browser,
		OS:             s.Device.OS,
		IP:             s.IPAddress,
		Location:       s.Location,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivity,
		ExpiresAt:      s.ExpiresAt,
		Active:         s.Active,
		Current:        s.ID == currentID,
	}
}
