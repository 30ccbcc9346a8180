package shopauth

import (
	internalsecurity "github.com/MrEthical07/shopauth/internal/security"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport]. Warnings names each setting weaker
// than the production defaults.
type SecurityReport = internalsecurity.Report

// PasswordConfigReport is the argon2id profile inside a [SecurityReport].
type PasswordConfigReport = internalsecurity.PasswordReport

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	return internalsecurity.BuildReport(internalsecurity.ReportInput{
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.Session.RefreshTTL,
		Password: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
			MinLength:   cfg.Password.MinLength,
		},
		LoginMaxAttempts:  cfg.RateLimit.Login.MaxAttempts,
		LockoutThreshold:  cfg.Lockout.Threshold,
		LockoutDuration:   cfg.Lockout.Duration,
		DeviceTracking:    cfg.Device.Enabled,
		SecureCookies:     cfg.Cookie.Secure,
		CSRFExemptPaths:   cfg.CSRF.ExemptPaths,
		AuditEnabled:      cfg.Audit.Enabled,
		ResetTokenTTL:     cfg.PasswordReset.TokenTTL,
		ForgotMaxAttempts: cfg.RateLimit.Forgot.MaxAttempts,
	})
}
