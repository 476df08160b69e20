package constants

import "time"

// HTTP API constants
const (
	// MaxRequestSize bounds a JSON request body (detection lists can be large)
	MaxRequestSize = 64 << 20

	// RequestTimeout is applied to synchronous API calls
	RequestTimeout = 15 * time.Minute

	// ShutdownTimeout is the grace period for in-flight requests on shutdown
	ShutdownTimeout = 30 * time.Second
)

// Job constants
const (
	// MaxTrackedJobs is the number of finished jobs kept for status queries
	MaxTrackedJobs = 256

	// JobEventBuffer is the per-subscriber event buffer; slow subscribers miss updates
	JobEventBuffer = 32
)
