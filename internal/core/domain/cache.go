package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// CacheKind is the logical kind tag of a cache slot.
type CacheKind string

const (
	// CacheObjects holds raw debug files downloaded from sources.
	CacheObjects CacheKind = "objects"
	// CacheSymbolIndex holds derived address-to-symbol indices.
	CacheSymbolIndex CacheKind = "symindex"
	// CacheUnwindIndex holds derived call-frame-unwind tables.
	CacheUnwindIndex CacheKind = "unwind"
)

// CacheKinds lists every kind in directory order.
var CacheKinds = []CacheKind{CacheObjects, CacheSymbolIndex, CacheUnwindIndex}

// CacheKey is the deterministic, versioned identity of a cache slot.
type CacheKey struct {
	Kind     CacheKind
	Identity string
	Version  uint32
}

// String returns the canonical "kind/vN/identity" form.
func (k CacheKey) String() string {
	var b strings.Builder
	b.Grow(len(k.Kind) + len(k.Identity) + 16)
	b.WriteString(string(k.Kind))
	b.WriteString("/v")
	b.WriteString(strconv.FormatUint(uint64(k.Version), 10))
	b.WriteByte('/')
	b.WriteString(k.Identity)
	return b.String()
}

// Hash returns the hex sha256 of the canonical form; it names the on-disk entry.
func (k CacheKey) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// ObjectKey returns the key of a raw object fetched from sourceID at path.
func ObjectKey(sourceID, path string) CacheKey {
	return CacheKey{Kind: CacheObjects, Identity: sourceID + ":" + path, Version: ObjectsVersion}
}

// DerivedKey returns the key of a derived artifact of kind built from the raw object key.
func DerivedKey(kind CacheKind, object CacheKey, version uint32) CacheKey {
	return CacheKey{Kind: kind, Identity: object.String(), Version: version}
}

// ObjectsVersion is the format version of raw object entries.
const ObjectsVersion uint32 = 1

// EntryState is the persisted state of a cache entry.
type EntryState string

const (
	// EntryPositive means the payload is present and valid.
	EntryPositive EntryState = "positive"
	// EntryNegative marks a failed fetch or build until it expires.
	EntryNegative EntryState = "negative"
	// EntryMalformed means the payload failed validation on read-back.
	EntryMalformed EntryState = "malformed"
)

// EntryMeta is the sidecar metadata stored next to every cache entry.
type EntryMeta struct {
	Key       string     `json:"key"`
	Kind      CacheKind  `json:"kind"`
	State     EntryState `json:"state"`
	Size      int64      `json:"size"`
	Checksum  uint64     `json:"checksum,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at,omitzero"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Expired reports whether a negative entry is past its time-to-live.
func (m *EntryMeta) Expired(now time.Time) bool {
	return m.State == EntryNegative && !now.Before(m.ExpiresAt)
}

// EntryRecord is the eviction bookkeeping journaled for every entry.
type EntryRecord struct {
	Hash       string    `json:"hash"`
	Kind       CacheKind `json:"kind"`
	Size       int64     `json:"size"`
	LastAccess time.Time `json:"last_access"`
	Negative   bool      `json:"negative,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// CacheStats summarizes the local cache.
type CacheStats struct {
	Entries      int
	Negative     int
	Bytes        int64
	BudgetBytes  int64
	PinnedHashes int
	ByKind       map[CacheKind]int64
}

// SweepStats reports one eviction pass.
type SweepStats struct {
	Evicted        int
	EvictedBytes   int64
	ExpiredRemoved int
	SkippedPinned  int
	RemainingBytes int64
}
