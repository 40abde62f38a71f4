package simpleattachment

import "context"

type repositoryPathSource struct {
	repo Repository
}

// NewRepositoryPathSource exposes the stored paths of attachment records as a
// PathSource.
func NewRepositoryPathSource(repo Repository) PathSource {
	return &repositoryPathSource{repo: repo}
}

func (s *repositoryPathSource) Name() string {
	return "attachments"
}

func (s *repositoryPathSource) StoredPaths(ctx context.Context) ([]string, error) {
	return s.repo.ListStoredPaths(ctx)
}
