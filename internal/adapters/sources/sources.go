// Package sources implements the backends symbol files are fetched from:
// local directories, HTTP symbol servers, a vendor symbol API, GCS and S3.
//
// Every backend reports a missing object as domain.KindNotFound and a
// failure that may clear on retry as domain.KindTransient.
package sources

import (
	"net/http"
	"path"
	"strings"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// cleanObjectPath rejects paths that could escape a source root.
func cleanObjectPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", domain.NotFound(zerr.With(domain.ErrInvalidObjectPath, "path", p))
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", domain.NotFound(zerr.With(domain.ErrInvalidObjectPath, "path", p))
		}
	}
	return path.Clean(p), nil
}

// objectKey prefixes p with the configured bucket or URL prefix.
func objectKey(prefix, p string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return p
	}
	return prefix + "/" + p
}

// annotate attaches the source id and object path to a zerr error.
func annotate(err error, source, objPath string) error {
	return zerr.With(zerr.With(err, "source", source), "path", objPath)
}

func notFound(source, objPath string) error {
	return domain.NotFound(annotate(domain.ErrNotFound, source, objPath))
}

func transient(err error, source, objPath string) error {
	return domain.Transient(annotate(zerr.Wrap(err, domain.ErrSourceRequestFailed.Error()), source, objPath))
}

// classifyStatus maps an HTTP status code to the error taxonomy. Statuses
// that will not change on retry count as absent.
func classifyStatus(code int, source, objPath string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return notFound(source, objPath)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		err := zerr.With(domain.ErrSourceUnauthorized, "status_code", code)
		return domain.Transient(annotate(err, source, objPath))
	case code == http.StatusTooManyRequests:
		err := zerr.With(domain.ErrSourceThrottled, "status_code", code)
		return domain.Transient(annotate(err, source, objPath))
	case code == http.StatusRequestTimeout || code >= 500:
		err := zerr.With(domain.ErrSourceRequestFailed, "status_code", code)
		return domain.Transient(annotate(err, source, objPath))
	default:
		err := zerr.With(domain.ErrSourceRequestFailed, "status_code", code)
		return domain.NotFound(annotate(err, source, objPath))
	}
}
