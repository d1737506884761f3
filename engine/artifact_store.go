package engine

import (
	"fmt"
	"path/filepath"

	"github.com/recurhq/recur/model"
	"github.com/spf13/afero"
)

// ArtifactStore persists monitoring artifacts (screenshots, workbook
// snapshots) under one directory per execution.
type ArtifactStore struct {
	fs   afero.Fs
	root string
}

func NewArtifactStore(fs afero.Fs, root string) *ArtifactStore {
	return &ArtifactStore{fs: fs, root: root}
}

// Save writes one artifact and returns its path. Empty data saves
// nothing and returns an empty path.
func (s *ArtifactStore) Save(executionId, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	dir := filepath.Join(s.root, executionId)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// artifactName keys artifacts by action index and capture phase. Office
// snapshots are workbooks, everything else is a PNG screenshot.
func artifactName(index int, phase string, surface model.Surface) string {
	ext := "png"
	if surface == model.SURFACE_OFFICE {
		ext = "xlsx"
	}
	return fmt.Sprintf("%03d_%s.%s", index, phase, ext)
}
