package domain

import (
	"time"

	"go.trai.ch/zerr"
)

// SourceType selects a Source Backend implementation.
type SourceType string

const (
	// SourceGCS is a Google Cloud Storage bucket.
	SourceGCS SourceType = "gcs"
	// SourceS3 is an S3-compatible bucket.
	SourceS3 SourceType = "s3"
	// SourceHTTP is a plain HTTP symbol server.
	SourceHTTP SourceType = "http"
	// SourceSymbolAPI is a vendor symbol API with a lookup-then-download protocol.
	SourceSymbolAPI SourceType = "symbolapi"
	// SourceFilesystem is a local directory.
	SourceFilesystem SourceType = "filesystem"
)

// SourceLayout names the directory convention objects are stored under.
type SourceLayout string

const (
	// LayoutBreakpad is "<debug file>/<DEBUGID>/<debug file stem>.sym".
	LayoutBreakpad SourceLayout = "breakpad"
	// LayoutNative is the GNU ".build-id/ab/cdef.debug" convention.
	LayoutNative SourceLayout = "native"
	// LayoutDebuginfod is "buildid/<code id>/debuginfo".
	LayoutDebuginfod SourceLayout = "debuginfod"
	// LayoutSymstore is the Microsoft symbol server convention "<file>/<ID>/<file>".
	LayoutSymstore SourceLayout = "symstore"
	// LayoutSymbolAPI is "<debug id>/<debug file>", resolved by the vendor API.
	LayoutSymbolAPI SourceLayout = "symbolapi"
)

// SourceConfig configures one Source Backend. Credentials are injected
// already validated; refreshing them is the caller's concern.
type SourceConfig struct {
	ID     string       `json:"id"`
	Type   SourceType   `json:"type"`
	Layout SourceLayout `json:"layout"`

	Bucket          string `json:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`

	URL     string            `json:"url,omitempty"`
	Token   string            `json:"token,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	Path string `json:"path,omitempty"`

	RateLimit float64       `json:"rate_limit,omitempty"`
	Burst     int           `json:"burst,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Retry     RetryPolicy   `json:"retry"`
}

// EffectiveLayout returns the configured layout or the type's natural default.
func (c SourceConfig) EffectiveLayout() SourceLayout {
	if c.Layout != "" {
		return c.Layout
	}
	if c.Type == SourceSymbolAPI {
		return LayoutSymbolAPI
	}
	return LayoutBreakpad
}

// Validate checks that the fields required by the source type are present.
func (c SourceConfig) Validate() error {
	if c.ID == "" {
		return zerr.With(ErrInvalidSourceConfig, "field", "id")
	}

	var required map[string]string
	switch c.Type {
	case SourceGCS, SourceS3:
		required = map[string]string{"bucket": c.Bucket}
	case SourceHTTP, SourceSymbolAPI:
		required = map[string]string{"url": c.URL}
	case SourceFilesystem:
		required = map[string]string{"path": c.Path}
	default:
		err := zerr.With(ErrUnknownSourceType, "type", string(c.Type))
		return zerr.With(err, "source", c.ID)
	}
	for field, value := range required {
		if value == "" {
			err := zerr.With(ErrInvalidSourceConfig, "field", field)
			return zerr.With(err, "source", c.ID)
		}
	}

	switch c.EffectiveLayout() {
	case LayoutBreakpad, LayoutNative, LayoutDebuginfod, LayoutSymstore, LayoutSymbolAPI:
	default:
		err := zerr.With(ErrUnknownLayout, "layout", string(c.Layout))
		return zerr.With(err, "source", c.ID)
	}
	if c.RateLimit < 0 || c.Burst < 0 || c.Timeout < 0 {
		return zerr.With(ErrInvalidSourceConfig, "source", c.ID)
	}
	return nil
}

// ValidateSources validates every config and rejects duplicate ids.
func ValidateSources(sources []SourceConfig) error {
	seen := make(map[string]struct{}, len(sources))
	for i := range sources {
		if err := sources[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[sources[i].ID]; dup {
			return zerr.With(ErrDuplicateSourceID, "source", sources[i].ID)
		}
		seen[sources[i].ID] = struct{}{}
	}
	return nil
}
