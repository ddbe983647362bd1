// Package config provides the configuration loader for symcache.
package config

import (
	"os"
	"path/filepath"
	"time"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the only configuration version understood by this loader.
const SchemaVersion = "1"

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load discovers symcache.yaml from cwd upwards. Without a file the default
// configuration is returned with its cache directory rooted at cwd.
func (l *Loader) Load(cwd string) (*domain.Config, error) {
	configPath, ok := findConfiguration(cwd)
	if !ok {
		cfg := domain.DefaultConfig()
		cfg.Cache.Dir = resolvePath(cwd, cfg.Cache.Dir)
		return &cfg, nil
	}
	return l.LoadFile(configPath)
}

// LoadFile reads and validates the configuration at configPath.
func (l *Loader) LoadFile(configPath string) (*domain.Config, error) {
	var file File
	if err := readAndUnmarshalYAML(configPath, &file); err != nil {
		return nil, zerr.With(err, "path", configPath)
	}

	if file.Version != "" && file.Version != SchemaVersion {
		l.Logger.Warn("unsupported config version, continuing with version "+SchemaVersion,
			"path", configPath, "version", file.Version)
	}

	cfg, err := buildConfig(filepath.Dir(configPath), &file)
	if err != nil {
		return nil, zerr.With(err, "path", configPath)
	}

	if len(cfg.Sources) == 0 {
		l.Logger.Warn("no sources configured", "path", configPath)
	}
	return cfg, nil
}

func findConfiguration(cwd string) (string, bool) {
	currentDir := cwd
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", false
		}
		currentDir = parentDir
	}
}

func buildConfig(baseDir string, file *File) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if err := applyCache(&cfg.Cache, baseDir, &file.Cache); err != nil {
		return nil, err
	}
	if err := applySharedCache(&cfg.SharedCache, baseDir, &file.SharedCache); err != nil {
		return nil, err
	}
	if err := applySymbolication(&cfg.Symbolication, &file.Symbolication); err != nil {
		return nil, err
	}
	if file.Proxy.Listen != "" {
		cfg.Proxy.Listen = file.Proxy.Listen
	}
	cfg.JSONLogs = file.Logging.JSON

	sources := make([]domain.SourceConfig, 0, len(file.Sources))
	for i := range file.Sources {
		sources = append(sources, buildSource(baseDir, &file.Sources[i]))
	}
	if err := domain.ValidateSources(sources); err != nil {
		return nil, err
	}
	cfg.Sources = sources

	return &cfg, nil
}

func applyCache(cfg *domain.CacheConfig, baseDir string, dto *CacheDTO) error {
	if dto.Dir != "" {
		cfg.Dir = dto.Dir
	}
	cfg.Dir = resolvePath(baseDir, cfg.Dir)

	if dto.MaxDiskBytes < 0 {
		return zerr.With(domain.ErrInvalidConfig, "field", "cache.max_disk_bytes")
	}
	if dto.MaxDiskBytes > 0 {
		cfg.MaxDiskBytes = dto.MaxDiskBytes
	}
	if dto.SweepInterval < 0 {
		return zerr.With(domain.ErrInvalidConfig, "field", "cache.sweep_interval")
	}
	if dto.SweepInterval > 0 {
		cfg.SweepInterval = dto.SweepInterval
	}

	ttl := dto.NegativeTTL
	for field, pair := range map[string]struct {
		src *time.Duration
		dst *time.Duration
	}{
		"not_found": {ttl.NotFound, &cfg.Negative.NotFound},
		"malformed": {ttl.Malformed, &cfg.Negative.Malformed},
		"transient": {ttl.Transient, &cfg.Negative.Transient},
	} {
		if pair.src == nil {
			continue
		}
		if *pair.src < 0 {
			return zerr.With(domain.ErrInvalidConfig, "field", "cache.negative_ttl."+field)
		}
		*pair.dst = *pair.src
	}
	return nil
}

func applySharedCache(cfg *domain.SharedCacheConfig, baseDir string, dto *SharedCacheDTO) error {
	switch dto.Type {
	case "":
		return nil
	case "filesystem":
		if dto.Path == "" {
			return zerr.With(domain.ErrInvalidConfig, "field", "shared_cache.path")
		}
	case "gcs":
		if dto.Bucket == "" {
			return zerr.With(domain.ErrInvalidConfig, "field", "shared_cache.bucket")
		}
	default:
		err := zerr.With(domain.ErrInvalidConfig, "field", "shared_cache.type")
		return zerr.With(err, "type", dto.Type)
	}

	cfg.Type = dto.Type
	if dto.Path != "" {
		cfg.Path = resolvePath(baseDir, dto.Path)
	}
	cfg.Bucket = dto.Bucket
	cfg.Prefix = dto.Prefix
	cfg.CredentialsFile = os.ExpandEnv(dto.CredentialsFile)
	if dto.QueueSize > 0 {
		cfg.QueueSize = dto.QueueSize
	}
	if dto.Concurrency > 0 {
		cfg.Concurrency = dto.Concurrency
	}
	return nil
}

func applySymbolication(cfg *domain.SymbolicationConfig, dto *SymbolicationDTO) error {
	if dto.Timeout < 0 || dto.MaxFrames < 0 || dto.ScanWords < 0 || dto.MaxConcurrentModules < 0 ||
		dto.Workers < 0 || dto.WorkerQueue < 0 || dto.IndexCacheSize < 0 {
		return zerr.With(domain.ErrInvalidConfig, "section", "symbolication")
	}

	setIfPositive(&cfg.Timeout, dto.Timeout)
	setIfPositive(&cfg.MaxFrames, dto.MaxFrames)
	setIfPositive(&cfg.ScanWords, dto.ScanWords)
	setIfPositive(&cfg.MaxConcurrentModules, dto.MaxConcurrentModules)
	setIfPositive(&cfg.Workers, dto.Workers)
	setIfPositive(&cfg.WorkerQueue, dto.WorkerQueue)
	setIfPositive(&cfg.IndexCacheSize, dto.IndexCacheSize)

	switch strategy := domain.FetchStrategy(dto.FetchStrategy); strategy {
	case "":
	case domain.StrategySequential, domain.StrategyRace:
		cfg.Strategy = strategy
	default:
		err := zerr.With(domain.ErrInvalidConfig, "field", "symbolication.fetch_strategy")
		return zerr.With(err, "fetch_strategy", dto.FetchStrategy)
	}
	return nil
}

func setIfPositive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

func buildSource(baseDir string, dto *SourceDTO) domain.SourceConfig {
	src := domain.SourceConfig{
		ID:              dto.ID,
		Type:            domain.SourceType(dto.Type),
		Layout:          domain.SourceLayout(dto.Layout),
		Bucket:          dto.Bucket,
		Prefix:          dto.Prefix,
		Region:          dto.Region,
		Endpoint:        os.ExpandEnv(dto.Endpoint),
		CredentialsFile: os.ExpandEnv(dto.CredentialsFile),
		AccessKeyID:     os.ExpandEnv(dto.AccessKeyID),
		SecretAccessKey: os.ExpandEnv(dto.SecretAccessKey),
		URL:             os.ExpandEnv(dto.URL),
		Token:           os.ExpandEnv(dto.Token),
		RateLimit:       dto.RateLimit,
		Burst:           dto.Burst,
		Timeout:         dto.Timeout,
		Retry:           domain.DefaultRetryPolicy(),
	}

	if len(dto.Headers) > 0 {
		src.Headers = make(map[string]string, len(dto.Headers))
		for k, v := range dto.Headers {
			src.Headers[k] = os.ExpandEnv(v)
		}
	}
	if dto.Path != "" {
		src.Path = resolvePath(baseDir, dto.Path)
	}
	if dto.Retry != nil {
		if dto.Retry.MaxAttempts > 0 {
			src.Retry.MaxAttempts = dto.Retry.MaxAttempts
		}
		setIfPositive(&src.Retry.BaseDelay, dto.Retry.BaseDelay)
		setIfPositive(&src.Retry.MaxDelay, dto.Retry.MaxDelay)
	}
	return src
}

// resolvePath makes p absolute relative to baseDir.
func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(baseDir, p))
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is supplied by the operator
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}

	return nil
}
