package internaldefs

import (
	"github.com/MrEthical07/shopauth"
)

// BucketCount is the number of latency buckets, the unbounded one included.
const BucketCount = 8

// CounterDef names one engine counter.
type CounterDef struct {
	ID   shopauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   shopauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: shopauth.MetricLoginSuccess, Name: "shopauth_login_success_total", Help: "Successful logins."},
	{ID: shopauth.MetricLoginFailure, Name: "shopauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: shopauth.MetricLoginRateLimited, Name: "shopauth_login_rate_limited_total", Help: "Logins refused by a rate limit."},
	{ID: shopauth.MetricLoginLocked, Name: "shopauth_login_locked_total", Help: "Logins refused because the account was locked."},
	{ID: shopauth.MetricAccountLocked, Name: "shopauth_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: shopauth.MetricRegisterSuccess, Name: "shopauth_register_success_total", Help: "Accounts created."},
	{ID: shopauth.MetricRegisterDuplicate, Name: "shopauth_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: shopauth.MetricRegisterRateLimited, Name: "shopauth_register_rate_limited_total", Help: "Registrations refused by a rate limit."},
	{ID: shopauth.MetricRefreshSuccess, Name: "shopauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: shopauth.MetricRefreshFailure, Name: "shopauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: shopauth.MetricRefreshReuseDetected, Name: "shopauth_refresh_reuse_detected_total", Help: "Refresh token reuse detections."},
	{ID: shopauth.MetricRefreshRateLimited, Name: "shopauth_refresh_rate_limited_total", Help: "Refreshes refused by a rate limit."},
	{ID: shopauth.MetricSessionCreated, Name: "shopauth_session_created_total", Help: "Sessions created."},
	{ID: shopauth.MetricSessionRevoked, Name: "shopauth_session_revoked_total", Help: "Sessions revoked."},
	{ID: shopauth.MetricLogout, Name: "shopauth_logout_total", Help: "Single-session logouts."},
	{ID: shopauth.MetricLogoutAll, Name: "shopauth_logout_all_total", Help: "Logout-everywhere operations."},
	{ID: shopauth.MetricPasswordChangeSuccess, Name: "shopauth_password_change_success_total", Help: "Password changes."},
	{ID: shopauth.MetricPasswordChangeInvalidOld, Name: "shopauth_password_change_invalid_old_total", Help: "Password changes rejected for a wrong current password."},
	{ID: shopauth.MetricPasswordRehashed, Name: "shopauth_password_rehashed_total", Help: "Stored hashes upgraded to current parameters."},
	{ID: shopauth.MetricPasswordResetRequest, Name: "shopauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: shopauth.MetricPasswordResetSuccess, Name: "shopauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: shopauth.MetricPasswordResetFailure, Name: "shopauth_password_reset_failure_total", Help: "Password resets rejected for an invalid token."},
	{ID: shopauth.MetricPasswordResetRateLimited, Name: "shopauth_password_reset_rate_limited_total", Help: "Reset requests refused by a rate limit."},
	{ID: shopauth.MetricNewDevice, Name: "shopauth_new_device_total", Help: "Logins from a device not seen before."},
	{ID: shopauth.MetricDeviceCheckSkipped, Name: "shopauth_device_check_skipped_total", Help: "Logins where the device check could not run."},
	{ID: shopauth.MetricCSRFRejected, Name: "shopauth_csrf_rejected_total", Help: "Requests rejected by the CSRF guard."},
	{ID: shopauth.MetricStoreUnavailable, Name: "shopauth_store_unavailable_total", Help: "Operations that failed closed because Redis was unreachable."},
}

var HistogramDefs = []HistogramDef{
	{ID: shopauth.MetricValidateLatency, Name: "shopauth_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: shopauth.MetricLoginLatency, Name: "shopauth_login_latency_seconds", Help: "Login latency, password hashing included."},
}

// HistogramBounds mirrors shopauth.HistogramBounds in Prometheus "le" form.
var HistogramBounds = [BucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is the instrument-name-safe form of HistogramBounds.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
