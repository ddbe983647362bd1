package domain

import (
	"runtime"
	"time"
)

// CacheConfig configures the local fetch-through cache.
type CacheConfig struct {
	Dir           string
	MaxDiskBytes  int64
	SweepInterval time.Duration
	Negative      NegativePolicy
}

// SharedCacheConfig configures the optional second-tier cache.
type SharedCacheConfig struct {
	Type            string
	Path            string
	Bucket          string
	Prefix          string
	CredentialsFile string
	QueueSize       int
	Concurrency     int
}

// Enabled reports whether a shared cache is configured.
func (c SharedCacheConfig) Enabled() bool {
	return c.Type != ""
}

// SymbolicationConfig bounds one symbolication request.
type SymbolicationConfig struct {
	Timeout              time.Duration
	MaxFrames            int
	ScanWords            int
	MaxConcurrentModules int
	Workers              int
	WorkerQueue          int
	Strategy             FetchStrategy
	IndexCacheSize       int
}

// ProxyConfig configures the symstore proxy server.
type ProxyConfig struct {
	Listen string
}

// Config is the complete service configuration.
type Config struct {
	Cache         CacheConfig
	SharedCache   SharedCacheConfig
	Symbolication SymbolicationConfig
	Proxy         ProxyConfig
	Sources       []SourceConfig
	JSONLogs      bool
}

// Default values applied when the configuration is silent.
const (
	DefaultMaxDiskBytes         = 10 << 30
	DefaultSweepInterval        = 5 * time.Minute
	DefaultTimeout              = 2 * time.Minute
	DefaultMaxFrames            = 256
	DefaultScanWords            = 40
	DefaultMaxConcurrentModules = 16
	DefaultWorkerQueue          = 1024
	DefaultIndexCacheSize       = 256
	DefaultSharedQueueSize      = 400
	DefaultSharedConcurrency    = 20
	DefaultProxyListen          = "127.0.0.1:3021"
)

// DefaultConfig returns a configuration with every default applied and no sources.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Dir:           DefaultCachePath(),
			MaxDiskBytes:  DefaultMaxDiskBytes,
			SweepInterval: DefaultSweepInterval,
			Negative:      DefaultNegativePolicy(),
		},
		SharedCache: SharedCacheConfig{
			QueueSize:   DefaultSharedQueueSize,
			Concurrency: DefaultSharedConcurrency,
		},
		Symbolication: SymbolicationConfig{
			Timeout:              DefaultTimeout,
			MaxFrames:            DefaultMaxFrames,
			ScanWords:            DefaultScanWords,
			MaxConcurrentModules: DefaultMaxConcurrentModules,
			Workers:              runtime.NumCPU(),
			WorkerQueue:          DefaultWorkerQueue,
			Strategy:             StrategySequential,
			IndexCacheSize:       DefaultIndexCacheSize,
		},
		Proxy: ProxyConfig{
			Listen: DefaultProxyListen,
		},
	}
}
