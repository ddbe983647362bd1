package sources

import "go.trai.ch/symcache/internal/core/domain"

// ClassifyStatus exposes classifyStatus for testing.
var ClassifyStatus = classifyStatus

// NewS3WithClient builds an S3 backend around a fake client.
func NewS3WithClient(cfg domain.SourceConfig, client s3API) *S3 {
	return newS3WithClient(cfg, client)
}

// NewGCSWithStore builds a GCS backend around a fake object store.
func NewGCSWithStore(cfg domain.SourceConfig, store objectStore) *GCS {
	return &GCS{id: cfg.ID, prefix: cfg.Prefix, store: store}
}
