package config

import "time"

// File represents the structure of the symcache.yaml configuration file.
type File struct {
	Version       string           `yaml:"version"`
	Cache         CacheDTO         `yaml:"cache"`
	SharedCache   SharedCacheDTO   `yaml:"shared_cache"`
	Symbolication SymbolicationDTO `yaml:"symbolication"`
	Proxy         ProxyDTO         `yaml:"proxy"`
	Logging       LoggingDTO       `yaml:"logging"`
	Sources       []SourceDTO      `yaml:"sources"`
}

// CacheDTO configures the local cache directory.
type CacheDTO struct {
	Dir           string         `yaml:"dir"`
	MaxDiskBytes  int64          `yaml:"max_disk_bytes"`
	SweepInterval time.Duration  `yaml:"sweep_interval"`
	NegativeTTL   NegativeTTLDTO `yaml:"negative_ttl"`
}

// NegativeTTLDTO overrides how long failures stay cached, per kind.
type NegativeTTLDTO struct {
	NotFound  *time.Duration `yaml:"not_found"`
	Malformed *time.Duration `yaml:"malformed"`
	Transient *time.Duration `yaml:"transient"`
}

// SharedCacheDTO configures the optional second-tier cache.
type SharedCacheDTO struct {
	Type            string `yaml:"type"`
	Path            string `yaml:"path"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
	QueueSize       int    `yaml:"queue_size"`
	Concurrency     int    `yaml:"concurrency"`
}

// SymbolicationDTO bounds symbolication requests.
type SymbolicationDTO struct {
	Timeout              time.Duration `yaml:"timeout"`
	MaxFrames            int           `yaml:"max_frames"`
	ScanWords            int           `yaml:"scan_words"`
	MaxConcurrentModules int           `yaml:"max_concurrent_modules"`
	Workers              int           `yaml:"workers"`
	WorkerQueue          int           `yaml:"worker_queue"`
	FetchStrategy        string        `yaml:"fetch_strategy"`
	IndexCacheSize       int           `yaml:"index_cache_size"`
}

// ProxyDTO configures the symstore proxy.
type ProxyDTO struct {
	Listen string `yaml:"listen"`
}

// LoggingDTO configures log output.
type LoggingDTO struct {
	JSON bool `yaml:"json"`
}

// SourceDTO represents one entry of the sources list.
type SourceDTO struct {
	ID              string            `yaml:"id"`
	Type            string            `yaml:"type"`
	Layout          string            `yaml:"layout"`
	Bucket          string            `yaml:"bucket"`
	Prefix          string            `yaml:"prefix"`
	Region          string            `yaml:"region"`
	Endpoint        string            `yaml:"endpoint"`
	CredentialsFile string            `yaml:"credentials_file"`
	AccessKeyID     string            `yaml:"access_key_id"`
	SecretAccessKey string            `yaml:"secret_access_key"`
	URL             string            `yaml:"url"`
	Token           string            `yaml:"token"`
	Headers         map[string]string `yaml:"headers"`
	Path            string            `yaml:"path"`
	RateLimit       float64           `yaml:"rate_limit"`
	Burst           int               `yaml:"burst"`
	Timeout         time.Duration     `yaml:"timeout"`
	Retry           *RetryDTO         `yaml:"retry"`
}

// RetryDTO overrides the retry policy of a source.
type RetryDTO struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}
