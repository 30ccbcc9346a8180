package rate

import "github.com/MrEthical07/shopauth/internal/storecall"

// ErrRedisUnavailable is returned when the counter could not be updated.
var ErrRedisUnavailable = storecall.ErrUnavailable
