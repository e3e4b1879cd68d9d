package internaldefs

import "github.com/aqryuz/authcore"

type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed logins."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Lockouts started by failed logins."},
	{ID: authcore.MetricAccountUnlocked, Name: "authcore_account_unlocked_total", Help: "Administrative unlocks."},
	{ID: authcore.MetricTOTPRequired, Name: "authcore_totp_required_total", Help: "Logins that stopped to ask for a TOTP code."},
	{ID: authcore.MetricTOTPFailure, Name: "authcore_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: authcore.MetricTOTPSuccess, Name: "authcore_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refreshes."},
	{ID: authcore.MetricRefreshEvicted, Name: "authcore_refresh_evicted_total", Help: "Refresh tokens evicted by the per-user cap."},
	{ID: authcore.MetricDeviceMismatch, Name: "authcore_device_mismatch_total", Help: "Refreshes presented from a different device."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Registered sessions."},
	{ID: authcore.MetricSessionEvicted, Name: "authcore_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Revoked sessions."},
	{ID: authcore.MetricSessionRegistrationFailed, Name: "authcore_session_registration_failed_total", Help: "Logins that issued tokens without a session."},
	{ID: authcore.MetricSessionExpired, Name: "authcore_session_expired_total", Help: "Sessions that hit their ceiling or expired."},
	{ID: authcore.MetricTokenRenewed, Name: "authcore_token_renewed_total", Help: "Access tokens renewed by sliding expiration."},
	{ID: authcore.MetricTokenBlacklisted, Name: "authcore_token_blacklisted_total", Help: "Access tokens blacklisted at logout."},
	{ID: authcore.MetricAuthenticateFailure, Name: "authcore_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeInvalidOld, Name: "authcore_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authcore.MetricPasswordChangeReuseRejected, Name: "authcore_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: authcore.MetricSweepRefreshExpired, Name: "authcore_sweep_refresh_expired_total", Help: "Refresh tokens retired by the sweeper."},
	{ID: authcore.MetricSweepSessionExpired, Name: "authcore_sweep_session_expired_total", Help: "Sessions retired by the sweeper."},
	{ID: authcore.MetricSweepRevocationExpired, Name: "authcore_sweep_revocation_expired_total", Help: "Revocation entries dropped by the sweeper."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the bucket upper bounds in seconds. The engine's last
// bucket is unbounded and is not listed.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramLabels are the Prometheus style le values of every bucket,
// including +Inf.
var HistogramLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped on a full audit queue."
)

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
