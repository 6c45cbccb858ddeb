package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// ArtifactStore хранит снимки в двух файлах на диске. Запись идет через
// временный файл и rename, поэтому HTTP никогда не отдает половину PNG.
type ArtifactStore struct {
	paths    map[valueobject.ArtifactKind]string
	maxBytes int
}

var _ port.ArtifactStore = (*ArtifactStore)(nil)

// NewArtifactStore. maxBytes <= 0 снимает ограничение на размер снимка.
func NewArtifactStore(snapshotPath, debugPath string, maxBytes int) (*ArtifactStore, error) {
	if snapshotPath == "" || debugPath == "" {
		return nil, fmt.Errorf("snapshot and debug paths are required")
	}
	if filepath.Clean(snapshotPath) == filepath.Clean(debugPath) {
		return nil, fmt.Errorf("snapshot and debug paths must differ")
	}
	return &ArtifactStore{
		paths: map[valueobject.ArtifactKind]string{
			valueobject.ArtifactSnapshot: snapshotPath,
			valueobject.ArtifactDebug:    debugPath,
		},
		maxBytes: maxBytes,
	}, nil
}

func (s *ArtifactStore) Save(_ context.Context, kind valueobject.ArtifactKind, data []byte) error {
	path, ok := s.paths[kind]
	if !ok {
		return fmt.Errorf("unknown artifact kind: %s", kind)
	}
	if len(data) == 0 {
		return fmt.Errorf("artifact %s is empty", kind)
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return fmt.Errorf("artifact %s exceeds %d bytes", kind, s.maxBytes)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace artifact: %w", err)
	}
	return nil
}

func (s *ArtifactStore) Load(_ context.Context, kind valueobject.ArtifactKind) (*port.Artifact, error) {
	path, ok := s.paths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown artifact kind: %s", kind)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, port.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, port.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	return &port.Artifact{
		Kind:        kind,
		ContentType: "image/png",
		Data:        data,
		ModifiedAt:  info.ModTime().UTC(),
	}, nil
}

// Path возвращает путь файла слота.
func (s *ArtifactStore) Path(kind valueobject.ArtifactKind) string {
	return s.paths[kind]
}
