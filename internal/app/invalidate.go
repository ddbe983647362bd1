package app

import (
	"context"
	"path/filepath"
	"strings"

	"go.trai.ch/symcache/internal/adapters/watcher" //nolint:depguard // Wired in app layer
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/symcache/internal/engine/derived"
)

type watchRoot struct {
	id   string
	root string
}

func (s *Service) watchRoots() []watchRoot {
	var roots []watchRoot
	for _, src := range s.cfg.Sources {
		if src.Type != domain.SourceFilesystem || src.Path == "" {
			continue
		}
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			continue
		}
		roots = append(roots, watchRoot{id: src.ID, root: abs})
	}
	return roots
}

// watchSources drops cached answers for files that change below the
// configured filesystem sources until ctx ends.
func (s *Service) watchSources(ctx context.Context) error {
	roots := s.watchRoots()
	if s.watcher == nil || len(roots) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	dirs := make([]string, len(roots))
	for i, r := range roots {
		dirs[i] = r.root
	}
	if err := s.watcher.Start(ctx, dirs...); err != nil {
		return err
	}
	defer func() { _ = s.watcher.Stop() }()

	debouncer := watcher.NewDebouncer(watcher.DefaultDebounceWindow, func(paths []string) {
		s.invalidatePaths(roots, paths)
	})
	for event := range s.watcher.Events() {
		debouncer.Add(event.Path)
	}
	debouncer.Flush()
	return ctx.Err()
}

// invalidatePaths removes the object and index entries derived from files
// below roots. Objects that exist now may still be negatively cached;
// objects that changed have stale positive entries.
func (s *Service) invalidatePaths(roots []watchRoot, paths []string) {
	for _, p := range paths {
		for _, r := range roots {
			rel, ok := relativeTo(r.root, p)
			if !ok {
				continue
			}
			n := s.invalidateObject(domain.ObjectKey(r.id, rel))
			s.logger.Info("invalidated cache entries", "source", r.id, "path", rel, "entries", n)
		}
	}
}

func (s *Service) invalidateObject(key domain.CacheKey) int {
	keys := []domain.CacheKey{
		key,
		domain.DerivedKey(domain.CacheSymbolIndex, key, derived.SymbolIndexVersion),
		domain.DerivedKey(domain.CacheUnwindIndex, key, derived.UnwindIndexVersion),
	}
	n := 0
	for _, k := range keys {
		if err := s.cache.Invalidate(k); err != nil {
			s.logger.Warn("failed to invalidate cache entry", "key", k.String(), "error", err)
			continue
		}
		n++
	}
	return n
}

// relativeTo returns path as a slash-separated object path below root.
func relativeTo(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
