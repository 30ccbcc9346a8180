package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/shopauth/internal/storecall"
)

// Status is the outcome of a fingerprint check.
type Status int

const (
	// StatusUnchecked means no classification was possible.
	StatusUnchecked Status = iota
	// StatusKnown means the fingerprint is in the user's history.
	StatusKnown
	// StatusNewDevice means the user has history and this fingerprint is not in it.
	StatusNewDevice
	// StatusFirstDevice means the user had no history yet.
	StatusFirstDevice
)

func (s Status) String() string {
	switch s {
	case StatusKnown:
		return "known"
	case StatusNewDevice:
		return "new_device"
	case StatusFirstDevice:
		return "first_device"
	default:
		return "unchecked"
	}
}

// Result carries the classification and the hashed fingerprint that was
// recorded, which callers may store on the session.
type Result struct {
	Status          Status
	FingerprintHash string
}

// NewDevice reports whether the login should be flagged.
func (r Result) NewDevice() bool {
	return r.Status == StatusNewDevice
}

const (
	checkKnown int64 = 1
	checkNew   int64 = 2
	checkFirst int64 = 3
)

const checkScript = `
local size = tonumber(ARGV[2])
local before = redis.call("LLEN", KEYS[1])
local removed = redis.call("LREM", KEYS[1], 0, ARGV[1])
redis.call("LPUSH", KEYS[1], ARGV[1])
redis.call("LTRIM", KEYS[1], 0, size - 1)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
if removed > 0 then
  return 1
end
if before == 0 then
  return 3
end
return 2
`

var checkLua = redis.NewScript(checkScript)

// Config configures a [Detector].
type Config struct {
	HistorySize int
	HistoryTTL  time.Duration
	Prefix      string
	Policy      storecall.Policy
}

// Detector classifies fingerprints. It is safe for concurrent use.
type Detector struct {
	redis  redis.UniversalClient
	cfg    Config
	logger *slog.Logger
}

// NewDetector creates a Detector. Zero config fields take defaults: 10
// entries, 90 days, prefix "dh".
func NewDetector(redisClient redis.UniversalClient, cfg Config, logger *slog.Logger) *Detector {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = 90 * 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "dh"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
	}
}

// Hash returns the stored form of a fingerprint.
func Hash(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}

// Check classifies fingerprint for userID and records it as the most recent
// entry. An empty fingerprint or a store failure yields StatusUnchecked.
func (d *Detector) Check(ctx context.Context, userID, fingerprint string) Result {
	if fingerprint == "" {
		return Result{Status: StatusUnchecked}
	}

	res := Result{FingerprintHash: Hash(fingerprint)}
	var code int64
	err := storecall.Do(ctx, d.cfg.Policy, nil, func(ctx context.Context) error {
		var err error
		code, err = checkLua.Run(
			ctx,
			d.redis,
			[]string{d.key(userID)},
			res.FingerprintHash,
			d.cfg.HistorySize,
			d.cfg.HistoryTTL.Milliseconds(),
		).Int64()
		if err != nil {
			return storecall.Unavailable(err)
		}
		return nil
	})
	if err != nil {
		d.logger.Warn("shopauth: device history unavailable, skipping check",
			"user_id", userID,
			"error", err,
		)
		res.Status = StatusUnchecked
		return res
	}

	switch code {
	case checkKnown:
		res.Status = StatusKnown
	case checkNew:
		res.Status = StatusNewDevice
	case checkFirst:
		res.Status = StatusFirstDevice
	default:
		res.Status = StatusUnchecked
	}
	return res
}

func (d *Detector) key(userID string) string {
	return d.cfg.Prefix + ":" + userID
}
