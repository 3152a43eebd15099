package walog

import "time"

// SyncPolicy controls when the log fsyncs buffered writes to disk.
type SyncPolicy int

const (
	// SyncEveryWrite fsyncs after every append. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota
	// SyncInterval fsyncs on a background timer.
	SyncInterval
	// SyncBatch fsyncs once a byte threshold has accumulated.
	SyncBatch
)

// Options configures a Writer.
type Options struct {
	BufferSize           int
	SyncPolicy           SyncPolicy
	SyncIntervalDuration time.Duration
	SyncBatchBytes       int64
}

// DefaultOptions returns a balanced configuration (periodic background
// fsync every 200ms), matching the teacher's default.
func DefaultOptions() Options {
	return Options{
		BufferSize:           64 * 1024,
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 * 1024 * 1024,
	}
}
