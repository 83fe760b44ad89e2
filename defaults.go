package swrcache

import "time"

const (
	defaultOperationTimeout = 150 * time.Millisecond
	defaultTTL              = 10 * time.Minute
	defaultNullTTL          = 120 * time.Second
	defaultStaleRatio       = 0.8
	defaultJitterRatio      = 0.1
	defaultRefreshGuardTTL  = 30 * time.Second
	defaultCompressAbove    = 1024
	defaultScanCount        = 100
	defaultDeleteBatch      = 100
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
