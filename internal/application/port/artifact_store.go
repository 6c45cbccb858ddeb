package port

import (
	"context"
	"errors"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// ErrArtifactNotFound - в слоте еще нет снимка.
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact - содержимое слота снимка.
type Artifact struct {
	Kind        valueobject.ArtifactKind
	ContentType string
	Data        []byte
	ModifiedAt  time.Time
}

// ArtifactStore хранит последние снимки по слотам (побеждает последняя запись).
type ArtifactStore interface {
	Save(ctx context.Context, kind valueobject.ArtifactKind, data []byte) error
	Load(ctx context.Context, kind valueobject.ArtifactKind) (*Artifact, error)
}

// ObjectInfo описывает объект в архивном хранилище.
type ObjectInfo struct {
	Key          string
	URL          string
	LastModified time.Time
}

// ObjectStorage - архив снимков в S3-совместимом хранилище.
type ObjectStorage interface {
	// PutObject загружает объект и возвращает URL для чтения.
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)
	GetObjectURL(ctx context.Context, key string) (string, error)
}

// ArtifactMetadata - метаданные архивного снимка.
type ArtifactMetadata struct {
	DashboardID  string
	ArtifactType string
	CycleID      string
	S3Key        string
	URL          string
	ContentType  string
	SizeBytes    int64
	CapturedAt   time.Time
	LastModified time.Time
	ExpiresAt    time.Time
}

// ArtifactListQuery определяет параметры выборки архива снимков.
type ArtifactListQuery struct {
	DashboardID  string
	Limit        int
	Cursor       string
	ArtifactType string
	From         time.Time
	To           time.Time
}

// ArtifactListPage содержит результат выборки и курсор следующей страницы.
type ArtifactListPage struct {
	Items      []ArtifactMetadata
	NextCursor string
}

// ArtifactMetadataRepository - индекс архивных снимков (DynamoDB).
type ArtifactMetadataRepository interface {
	Put(ctx context.Context, record ArtifactMetadata) error
	ListByDashboard(ctx context.Context, query ArtifactListQuery) (ArtifactListPage, error)
}
