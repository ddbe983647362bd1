package domain

import "go.trai.ch/zerr"

var (
	// ErrNotFound is returned when an object or module does not exist in a source.
	ErrNotFound = zerr.New("object not found")

	// ErrTransient is returned when a source failed in a way that may succeed on retry.
	ErrTransient = zerr.New("transient source failure")

	// ErrMalformed is returned when bytes fail format validation.
	ErrMalformed = zerr.New("malformed debug file")

	// ErrResourceExhausted is returned when the disk budget or the worker pool is saturated.
	ErrResourceExhausted = zerr.New("resource exhausted")

	// ErrNegativeCached is returned when a lookup is answered by an unexpired negative cache entry.
	ErrNegativeCached = zerr.New("cached failure")

	// ErrCacheCreateFailed is returned when a cache directory cannot be created.
	ErrCacheCreateFailed = zerr.New("failed to create cache directory")

	// ErrCacheReadFailed is returned when a cache entry cannot be read.
	ErrCacheReadFailed = zerr.New("failed to read cache entry")

	// ErrCacheWriteFailed is returned when a cache entry cannot be written.
	ErrCacheWriteFailed = zerr.New("failed to write cache entry")

	// ErrCacheMetaCorrupt is returned when a sidecar metadata file cannot be decoded.
	ErrCacheMetaCorrupt = zerr.New("corrupt cache metadata")

	// ErrCacheEntryTooLarge is returned when a payload exceeds the whole disk budget.
	ErrCacheEntryTooLarge = zerr.New("cache entry exceeds disk budget")

	// ErrComputePanicked is returned when a cache compute function panics.
	ErrComputePanicked = zerr.New("cache compute panicked")

	// ErrIndexOpenFailed is returned when the entry index cannot be opened.
	ErrIndexOpenFailed = zerr.New("failed to open entry index")

	// ErrIndexWriteFailed is returned when the entry index cannot be updated.
	ErrIndexWriteFailed = zerr.New("failed to update entry index")

	// ErrIndexReadFailed is returned when the entry index cannot be read.
	ErrIndexReadFailed = zerr.New("failed to read entry index")

	// ErrWorkerPoolSaturated is returned when the CPU worker pool queue is full.
	ErrWorkerPoolSaturated = zerr.New("worker pool saturated")

	// ErrSourceRequestFailed is returned when a request to a source backend fails.
	ErrSourceRequestFailed = zerr.New("source request failed")

	// ErrSourceUnauthorized is returned when a source rejects the injected credentials.
	ErrSourceUnauthorized = zerr.New("source rejected credentials")

	// ErrSourceThrottled is returned when a source rate limits a request.
	ErrSourceThrottled = zerr.New("source throttled request")

	// ErrSourceResponseInvalid is returned when a source answers with an unparsable body.
	ErrSourceResponseInvalid = zerr.New("invalid source response")

	// ErrUnknownSourceType is returned when a source config names an unsupported backend.
	ErrUnknownSourceType = zerr.New("unknown source type")

	// ErrInvalidSourceConfig is returned when a source config is missing required fields.
	ErrInvalidSourceConfig = zerr.New("invalid source config")

	// ErrDuplicateSourceID is returned when two sources share the same id.
	ErrDuplicateSourceID = zerr.New("duplicate source id")

	// ErrUnknownLayout is returned when a source config names an unsupported path layout.
	ErrUnknownLayout = zerr.New("unknown source layout")

	// ErrInvalidObjectPath is returned when an object path escapes the source root or is empty.
	ErrInvalidObjectPath = zerr.New("invalid object path")

	// ErrDecompressFailed is returned when a compressed object cannot be decoded.
	ErrDecompressFailed = zerr.New("failed to decompress object")

	// ErrUnsupportedFormat is returned when no parser recognizes an object.
	ErrUnsupportedFormat = zerr.New("unsupported debug file format")

	// ErrSymbolParseFailed is returned when a symbol file cannot be parsed.
	ErrSymbolParseFailed = zerr.New("failed to parse symbols")

	// ErrUnwindParseFailed is returned when unwind information cannot be parsed.
	ErrUnwindParseFailed = zerr.New("failed to parse unwind information")

	// ErrIndexDecodeFailed is returned when a derived index cannot be decoded.
	ErrIndexDecodeFailed = zerr.New("failed to decode derived index")

	// ErrIndexVersionMismatch is returned when a derived index carries another builder version.
	ErrIndexVersionMismatch = zerr.New("derived index version mismatch")

	// ErrDumpReadFailed is returned when a dump document cannot be read.
	ErrDumpReadFailed = zerr.New("failed to read dump")

	// ErrDumpParseFailed is returned when a dump document cannot be decoded.
	ErrDumpParseFailed = zerr.New("failed to parse dump")

	// ErrInvalidDump is returned when a decoded dump violates structural rules.
	ErrInvalidDump = zerr.New("invalid dump")

	// ErrUnsupportedArch is returned when a dump targets an architecture the walker cannot unwind.
	ErrUnsupportedArch = zerr.New("unsupported architecture")

	// ErrInvalidCFIRule is returned when a CFI rule expression cannot be evaluated.
	ErrInvalidCFIRule = zerr.New("invalid CFI rule")

	// ErrSymbolicationFailed is returned when a symbolication request aborts.
	ErrSymbolicationFailed = zerr.New("symbolication failed")

	// ErrNoSourcesConfigured is returned when a request carries no source configs.
	ErrNoSourcesConfigured = zerr.New("no sources configured")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when no config file can be found.
	ErrConfigNotFound = zerr.New("could not find symcache.yaml")

	// ErrInvalidConfig is returned when a config value is out of range.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrSharedCacheFailed is returned when the shared cache tier fails.
	ErrSharedCacheFailed = zerr.New("shared cache operation failed")

	// ErrInvalidSymstorePath is returned when a proxy path is not name/id/file.
	ErrInvalidSymstorePath = zerr.New("invalid symstore path")
)
