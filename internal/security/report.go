package security

import "time"

// Argon2 memory below this (in KiB) is flagged as weak.
const minArgon2MemoryKiB = 19 * 1024

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// Report is a read-only view of the security-relevant configuration.
// Warnings lists every weakened setting in a fixed order.
type Report struct {
	SigningAlgorithm     string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	Argon2               PasswordReport
	LoginRateLimited     bool
	LockoutActive        bool
	LockoutThreshold     int
	DeviceTrackingActive bool
	SecureCookies        bool
	CSRFExemptPaths      []string
	AuditActive          bool
	Warnings             []string
}

type ReportInput struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	Password          PasswordReport
	LoginMaxAttempts  int
	LockoutThreshold  int
	LockoutDuration   time.Duration
	DeviceTracking    bool
	SecureCookies     bool
	CSRFExemptPaths   []string
	AuditEnabled      bool
	ResetTokenTTL     time.Duration
	ForgotMaxAttempts int
}

func BuildReport(input ReportInput) Report {
	lockout := input.LockoutThreshold > 0 && input.LockoutDuration > 0

	r := Report{
		SigningAlgorithm:     "RS256",
		AccessTTL:            input.AccessTTL,
		RefreshTTL:           input.RefreshTTL,
		Argon2:               input.Password,
		LoginRateLimited:     input.LoginMaxAttempts > 0,
		LockoutActive:        lockout,
		LockoutThreshold:     input.LockoutThreshold,
		DeviceTrackingActive: input.DeviceTracking,
		SecureCookies:        input.SecureCookies,
		CSRFExemptPaths:      append([]string(nil), input.CSRFExemptPaths...),
		AuditActive:          input.AuditEnabled,
	}

	if !input.SecureCookies {
		r.Warnings = append(r.Warnings, "cookies are sent without the Secure attribute")
	}
	if !r.LoginRateLimited {
		r.Warnings = append(r.Warnings, "login rate limiting is disabled")
	}
	if !lockout {
		r.Warnings = append(r.Warnings, "account lockout is disabled")
	}
	if input.ForgotMaxAttempts <= 0 {
		r.Warnings = append(r.Warnings, "password reset requests are not rate limited")
	}
	if input.Password.Memory < minArgon2MemoryKiB {
		r.Warnings = append(r.Warnings, "argon2id memory is below 19 MiB")
	}
	if input.Password.MinLength < 12 {
		r.Warnings = append(r.Warnings, "minimum password length is below 12")
	}
	if input.AccessTTL > 15*time.Minute {
		r.Warnings = append(r.Warnings, "access tokens live longer than 15m")
	}
	if input.ResetTokenTTL > time.Hour {
		r.Warnings = append(r.Warnings, "reset tokens live longer than 1h")
	}
	if !input.AuditEnabled {
		r.Warnings = append(r.Warnings, "audit events are disabled")
	}
	return r
}
