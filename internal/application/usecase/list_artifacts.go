package usecase

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

type ListArtifactsCommand struct {
	DashboardID  string
	Limit        int
	Cursor       string
	ArtifactType string
	From         time.Time
	To           time.Time
}

type ArtifactListItem struct {
	Type         string    `json:"type"`
	CycleID      string    `json:"cycle_id,omitempty"`
	S3Key        string    `json:"s3_key"`
	URL          string    `json:"url"`
	CapturedAt   time.Time `json:"captured_at"`
	LastModified time.Time `json:"last_modified"`
}

type ListArtifactsResult struct {
	Items      []ArtifactListItem `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type ListArtifactsConfig struct {
	KeyPrefix           string
	DefaultLimit        int
	MaxLimit            int
	FallbackToS3OnError bool
}

// ListArtifactsUseCase отдает архив снимков: сначала из индекса DynamoDB,
// при его недоступности (если разрешено) - листингом бакета.
type ListArtifactsUseCase struct {
	storage  port.ObjectStorage
	metadata port.ArtifactMetadataRepository
	config   ListArtifactsConfig
	logger   *logger.Logger
}

func NewListArtifactsUseCase(
	storage port.ObjectStorage,
	metadata port.ArtifactMetadataRepository,
	config ListArtifactsConfig,
	log *logger.Logger,
) *ListArtifactsUseCase {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 24
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 100
	}
	return &ListArtifactsUseCase{
		storage:  storage,
		metadata: metadata,
		config:   config,
		logger:   log,
	}
}

func (uc *ListArtifactsUseCase) Execute(ctx context.Context, cmd ListArtifactsCommand) (*ListArtifactsResult, error) {
	dashboardID := strings.TrimSpace(cmd.DashboardID)
	if !dashboardIDRegex.MatchString(dashboardID) {
		return nil, fmt.Errorf("%w: invalid dashboard_id", ErrInvalidArgument)
	}

	limit := cmd.Limit
	if limit <= 0 {
		limit = uc.config.DefaultLimit
	}
	if limit > uc.config.MaxLimit {
		limit = uc.config.MaxLimit
	}

	if !cmd.From.IsZero() && !cmd.To.IsZero() && cmd.From.After(cmd.To) {
		return nil, fmt.Errorf("%w: from must be less than or equal to to", ErrInvalidArgument)
	}

	query := port.ArtifactListQuery{
		DashboardID:  dashboardID,
		Limit:        limit,
		Cursor:       strings.TrimSpace(cmd.Cursor),
		ArtifactType: strings.TrimSpace(cmd.ArtifactType),
		From:         cmd.From.UTC(),
		To:           cmd.To.UTC(),
	}

	if uc.metadata != nil {
		page, err := uc.metadata.ListByDashboard(ctx, query)
		if err == nil {
			return uc.fromMetadata(ctx, page), nil
		}
		if !uc.config.FallbackToS3OnError {
			return nil, fmt.Errorf("failed to list artifacts via metadata index: %w", err)
		}
		uc.logger.Warn("Artifact metadata index is unavailable, using S3 fallback",
			"dashboard_id", dashboardID,
			"error", err.Error(),
		)
	}

	return uc.fromBucket(ctx, query)
}

func (uc *ListArtifactsUseCase) fromMetadata(ctx context.Context, page port.ArtifactListPage) *ListArtifactsResult {
	items := make([]ArtifactListItem, 0, len(page.Items))
	for _, record := range page.Items {
		url := record.URL
		// сохраненная presigned-ссылка могла истечь
		if uc.storage != nil {
			if fresh, err := uc.storage.GetObjectURL(ctx, record.S3Key); err == nil {
				url = fresh
			}
		}
		items = append(items, ArtifactListItem{
			Type:         record.ArtifactType,
			CycleID:      record.CycleID,
			S3Key:        record.S3Key,
			URL:          url,
			CapturedAt:   record.CapturedAt.UTC(),
			LastModified: record.LastModified.UTC(),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CapturedAt.After(items[j].CapturedAt)
	})

	return &ListArtifactsResult{Items: items, NextCursor: page.NextCursor}
}

func (uc *ListArtifactsUseCase) fromBucket(ctx context.Context, query port.ArtifactListQuery) (*ListArtifactsResult, error) {
	if uc.storage == nil {
		return nil, fmt.Errorf("%w: artifact storage", ErrNotConfigured)
	}
	if query.Cursor != "" {
		return nil, fmt.Errorf("%w: cursor pagination requires artifact metadata index", ErrInvalidArgument)
	}

	objects, err := uc.storage.ListObjects(ctx, artifactPrefix(uc.config.KeyPrefix, query.DashboardID), query.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	items := make([]ArtifactListItem, 0, len(objects))
	for _, object := range objects {
		artifactType, capturedAt := parseArtifactKey(object.Key)
		if query.ArtifactType != "" && artifactType != query.ArtifactType {
			continue
		}
		if !query.From.IsZero() && capturedAt.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && capturedAt.After(query.To) {
			continue
		}
		items = append(items, ArtifactListItem{
			Type:         artifactType,
			S3Key:        object.Key,
			URL:          object.URL,
			CapturedAt:   capturedAt,
			LastModified: object.LastModified.UTC(),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].LastModified.After(items[j].LastModified)
	})
	if len(items) > query.Limit {
		items = items[:query.Limit]
	}

	return &ListArtifactsResult{Items: items}, nil
}

// parseArtifactKey разбирает имя вида 20240501T100000Z_snapshot.png.
func parseArtifactKey(key string) (string, time.Time) {
	name := path.Base(strings.TrimSpace(key))
	if !strings.HasSuffix(name, ".png") {
		return "unknown", time.Time{}
	}

	ts, kind, ok := strings.Cut(strings.TrimSuffix(name, ".png"), "_")
	if !ok || ts == "" || kind == "" {
		return "unknown", time.Time{}
	}

	capturedAt, err := time.Parse(artifactKeyTimeLayout, ts)
	if err != nil {
		return kind, time.Time{}
	}
	return kind, capturedAt.UTC()
}
