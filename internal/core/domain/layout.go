package domain

import "path/filepath"

const (
	// SymcacheDirName is the name of the default working directory.
	SymcacheDirName = ".symcache"

	// CacheDirName is the name of the local cache directory.
	CacheDirName = "cache"

	// IndexDirName is the name of the entry index directory inside the cache.
	IndexDirName = "index"

	// TmpFilePrefix prefixes in-progress temporary files.
	TmpFilePrefix = ".tmp-"

	// MetaFileSuffix is appended to an entry hash to name its sidecar.
	MetaFileSuffix = ".meta"

	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "symcache.yaml"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultCachePath returns the default path for the local cache.
// It joins .symcache and cache.
func DefaultCachePath() string {
	return filepath.Join(SymcacheDirName, CacheDirName)
}

// IndexPath returns the entry index directory for a cache rooted at dir.
func IndexPath(dir string) string {
	return filepath.Join(dir, IndexDirName)
}
