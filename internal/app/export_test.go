package app

// InvalidatePaths runs one invalidation pass as the source watcher would.
func (s *Service) InvalidatePaths(paths ...string) {
	s.invalidatePaths(s.watchRoots(), paths)
}
