package sources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// maxLookupBody bounds the JSON listing returned by the lookup endpoint.
const maxLookupBody = 4 << 20

// SymbolAPI talks to a vendor symbol API: a lookup by debug id and file
// name returns candidate file ids, which are then downloaded individually.
// Object paths have the form "<debug id>/<debug file>".
type SymbolAPI struct {
	id     string
	base   *url.URL
	token  string
	header map[string]string
	client *http.Client
	idle   time.Duration
}

// symbolFile is one entry of the lookup response.
type symbolFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DebugID  string `json:"debug_id"`
	FileType string `json:"file_type"`
}

// NewSymbolAPI creates a backend for cfg.
func NewSymbolAPI(cfg domain.SourceConfig, client *http.Client) (*SymbolAPI, error) {
	base, err := parseBaseURL(cfg)
	if err != nil {
		return nil, err
	}
	return &SymbolAPI{
		id:     cfg.ID,
		base:   base,
		token:  cfg.Token,
		header: cfg.Headers,
		client: clientFor(cfg, client),
		idle:   timeoutFor(cfg),
	}, nil
}

// ID implements ports.SourceBackend.
func (s *SymbolAPI) ID() string { return s.id }

func (s *SymbolAPI) endpoint(query url.Values, segments ...string) string {
	u := *s.base
	u.Path = strings.TrimSuffix(u.Path, "/")
	for _, seg := range segments {
		u.Path += "/" + url.PathEscape(seg)
	}
	u.RawPath = ""
	u.RawQuery = query.Encode()
	return u.String()
}

func (s *SymbolAPI) do(ctx context.Context, method, target, objPath string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return nil, domain.Transient(annotate(zerr.Wrap(err, domain.ErrSourceRequestFailed.Error()), s.id, objPath))
	}
	for k, v := range s.header {
		req.Header.Set(k, v)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transient(err, s.id, objPath)
	}
	if err := classifyStatus(resp.StatusCode, s.id, objPath); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// lookup returns the file ids matching objPath, best match first.
func (s *SymbolAPI) lookup(ctx context.Context, objPath string) ([]symbolFile, error) {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return nil, err
	}
	debugID, name, ok := strings.Cut(clean, "/")
	if !ok || debugID == "" || name == "" || strings.Contains(name, "/") {
		return nil, domain.NotFound(annotate(domain.ErrInvalidObjectPath, s.id, objPath))
	}

	query := url.Values{}
	query.Set("debug_id", debugID)
	query.Set("file_name", name)

	resp, err := s.do(ctx, http.MethodGet, s.endpoint(query, "files"), objPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var files []symbolFile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxLookupBody)).Decode(&files); err != nil {
		return nil, domain.Transient(annotate(zerr.Wrap(err, domain.ErrSourceResponseInvalid.Error()), s.id, objPath))
	}
	if len(files) == 0 {
		return nil, notFound(s.id, objPath)
	}
	return files, nil
}

// Fetch implements ports.SourceBackend.
func (s *SymbolAPI) Fetch(ctx context.Context, objPath string) (io.ReadCloser, error) {
	files, err := s.lookup(ctx, objPath)
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodGet, s.endpoint(nil, "files", files[0].ID, "download"), objPath)
	if err != nil {
		return nil, err
	}
	return newIdleBody(resp.Body, s.idle, s.id, objPath), nil
}

// Exists implements ports.SourceBackend. Only the lookup is performed.
func (s *SymbolAPI) Exists(ctx context.Context, objPath string) (bool, error) {
	_, err := s.lookup(ctx, objPath)
	if err == nil {
		return true, nil
	}
	if domain.KindOf(err) == domain.KindNotFound {
		return false, nil
	}
	return false, err
}
