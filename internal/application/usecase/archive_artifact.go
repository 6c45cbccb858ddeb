package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

var dashboardIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const artifactKeyTimeLayout = "20060102T150405Z"

// ArchiveArtifactCommand - выгрузить последний снимок слота Kind в архив.
type ArchiveArtifactCommand struct {
	DashboardID string
	CycleID     string
	Kind        valueobject.ArtifactKind
	CapturedAt  time.Time
}

type ArchivedArtifact struct {
	Kind       valueobject.ArtifactKind
	S3Key      string
	URL        string
	SizeBytes  int64
	CapturedAt time.Time
}

type ArchiveArtifactConfig struct {
	KeyPrefix   string
	MetadataTTL time.Duration
	// MetadataStrict - ошибка записи индекса считается ошибкой архивации.
	MetadataStrict bool
}

// ArchiveArtifactUseCase копирует локальный снимок в объектное хранилище
// и регистрирует его в индексе метаданных.
type ArchiveArtifactUseCase struct {
	artifacts port.ArtifactStore
	storage   port.ObjectStorage
	metadata  port.ArtifactMetadataRepository
	config    ArchiveArtifactConfig
	logger    *logger.Logger
	now       func() time.Time
}

func NewArchiveArtifactUseCase(
	artifacts port.ArtifactStore,
	storage port.ObjectStorage,
	metadata port.ArtifactMetadataRepository,
	config ArchiveArtifactConfig,
	log *logger.Logger,
) *ArchiveArtifactUseCase {
	return &ArchiveArtifactUseCase{
		artifacts: artifacts,
		storage:   storage,
		metadata:  metadata,
		config:    config,
		logger:    log,
		now:       time.Now,
	}
}

func (uc *ArchiveArtifactUseCase) Execute(ctx context.Context, cmd ArchiveArtifactCommand) (*ArchivedArtifact, error) {
	if uc.storage == nil || uc.artifacts == nil {
		return nil, fmt.Errorf("%w: artifact archive", ErrNotConfigured)
	}

	dashboardID := strings.TrimSpace(cmd.DashboardID)
	if !dashboardIDRegex.MatchString(dashboardID) {
		return nil, fmt.Errorf("%w: invalid dashboard_id", ErrInvalidArgument)
	}
	if !cmd.Kind.Validate() {
		return nil, fmt.Errorf("%w: unsupported artifact kind: %s", ErrInvalidArgument, cmd.Kind)
	}

	artifact, err := uc.artifacts.Load(ctx, cmd.Kind)
	if err != nil {
		if errors.Is(err, port.ErrArtifactNotFound) {
			return nil, fmt.Errorf("no %s artifact to archive: %w", cmd.Kind, err)
		}
		return nil, fmt.Errorf("failed to load %s artifact: %w", cmd.Kind, err)
	}

	capturedAt := cmd.CapturedAt.UTC()
	if capturedAt.IsZero() {
		capturedAt = artifact.ModifiedAt.UTC()
	}
	if capturedAt.IsZero() {
		capturedAt = uc.now().UTC()
	}

	key := uc.buildKey(dashboardID, capturedAt, cmd.Kind)
	url, err := uc.storage.PutObject(ctx, key, artifact.ContentType, artifact.Data)
	if err != nil {
		uc.logger.Error("Failed to upload artifact", err,
			"dashboard_id", dashboardID,
			"cycle_id", cmd.CycleID,
			"kind", cmd.Kind.String(),
		)
		return nil, fmt.Errorf("failed to upload %s: %w", cmd.Kind, err)
	}

	result := &ArchivedArtifact{
		Kind:       cmd.Kind,
		S3Key:      key,
		URL:        url,
		SizeBytes:  int64(len(artifact.Data)),
		CapturedAt: capturedAt,
	}

	if uc.metadata != nil {
		if err := uc.putMetadata(ctx, dashboardID, cmd.CycleID, artifact.ContentType, result); err != nil {
			if uc.config.MetadataStrict {
				return nil, err
			}
			uc.logger.Warn("Artifact uploaded but metadata index write failed",
				"dashboard_id", dashboardID,
				"s3_key", key,
				"error", err.Error(),
			)
		}
	}

	return result, nil
}

func (uc *ArchiveArtifactUseCase) putMetadata(ctx context.Context, dashboardID, cycleID, contentType string, a *ArchivedArtifact) error {
	record := port.ArtifactMetadata{
		DashboardID:  dashboardID,
		ArtifactType: a.Kind.String(),
		CycleID:      cycleID,
		S3Key:        a.S3Key,
		URL:          a.URL,
		ContentType:  contentType,
		SizeBytes:    a.SizeBytes,
		CapturedAt:   a.CapturedAt,
		LastModified: uc.now().UTC(),
	}
	if uc.config.MetadataTTL > 0 {
		record.ExpiresAt = a.CapturedAt.Add(uc.config.MetadataTTL)
	}

	if err := uc.metadata.Put(ctx, record); err != nil {
		return fmt.Errorf("failed to index %s: %w", a.S3Key, err)
	}
	return nil
}

// buildKey: <prefix>/<dashboard>/YYYY/MM/DD/<ts>_<kind>.png
func (uc *ArchiveArtifactUseCase) buildKey(dashboardID string, capturedAt time.Time, kind valueobject.ArtifactKind) string {
	return fmt.Sprintf("%s%s/%s_%s.png",
		artifactPrefix(uc.config.KeyPrefix, dashboardID),
		capturedAt.Format("2006/01/02"),
		capturedAt.Format(artifactKeyTimeLayout),
		kind,
	)
}

func artifactPrefix(keyPrefix, dashboardID string) string {
	prefix := strings.Trim(keyPrefix, "/")
	if prefix == "" {
		prefix = "artifacts"
	}
	return fmt.Sprintf("%s/%s/", prefix, dashboardID)
}
