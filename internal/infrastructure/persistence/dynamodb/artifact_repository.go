package dynamodb

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

const (
	defaultListLimit = 24
	maxListLimit     = 100

	// GSI1 - выборка по конкретному типу снимка (snapshot / debug).
	artifactsByTypeIndex = "GSI1"

	attrPK           = "PK"
	attrSK           = "SK"
	attrGSI1PK       = "GSI1PK"
	attrGSI1SK       = "GSI1SK"
	attrDashboardID  = "dashboard_id"
	attrArtifactType = "artifact_type"
	attrCycleID      = "cycle_id"
	attrS3Key        = "s3_key"
	attrURL          = "url"
	attrContentType  = "content_type"
	attrSizeBytes    = "size_bytes"
	attrCapturedAt   = "captured_at"
	attrCreatedAt    = "created_at"
	attrExpiresAt    = "expires_at"
)

var dashboardIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
}

// ArtifactRepository - индекс архивных снимков в DynamoDB.
// Таблица: PK=DASHBOARD#id, SK=TS#millis#TYPE#type#KEY#hash, TTL по expires_at.
type ArtifactRepository struct {
	client      *dynamodb.Client
	tableName   string
	strongReads bool
}

var _ port.ArtifactMetadataRepository = (*ArtifactRepository)(nil)

func NewArtifactRepository(ctx context.Context, cfg Config) (*ArtifactRepository, error) {
	tableName := strings.TrimSpace(cfg.TableName)
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID != "" || secretAccessKey != "" {
		if accessKeyID == "" || secretAccessKey == "" {
			return nil, fmt.Errorf("both dynamodb access key id and secret access key are required for static credentials")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
	})

	return &ArtifactRepository{
		client:      client,
		tableName:   tableName,
		strongReads: cfg.StrongReads,
	}, nil
}

// Put записывает метаданные одного архивного снимка.
func (r *ArtifactRepository) Put(ctx context.Context, record port.ArtifactMetadata) error {
	item, err := toItem(record)
	if err != nil {
		return err
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put item failed: %w", err)
	}
	return nil
}

func (r *ArtifactRepository) ListByDashboard(ctx context.Context, query port.ArtifactListQuery) (port.ArtifactListPage, error) {
	q, err := buildQuery(query)
	if err != nil {
		return port.ArtifactListPage{}, err
	}

	input := q.input(r.tableName, r.strongReads)
	if cursor := strings.TrimSpace(query.Cursor); cursor != "" {
		startKey, err := decodeCursor(cursor, q.cursorFilter())
		if err != nil {
			return port.ArtifactListPage{}, err
		}
		input.ExclusiveStartKey = startKey
	}

	output, err := r.client.Query(ctx, input)
	if err != nil {
		return port.ArtifactListPage{}, fmt.Errorf("dynamodb query failed: %w", err)
	}

	page := port.ArtifactListPage{Items: make([]port.ArtifactMetadata, 0, len(output.Items))}
	for _, raw := range output.Items {
		item, err := fromItem(raw)
		if err != nil {
			return port.ArtifactListPage{}, err
		}
		page.Items = append(page.Items, item)
	}

	if len(output.LastEvaluatedKey) > 0 {
		page.NextCursor, err = encodeCursor(output.LastEvaluatedKey, q.cursorFilter())
		if err != nil {
			return port.ArtifactListPage{}, err
		}
	}

	return page, nil
}

// listQuery - нормализованные параметры выборки.
type listQuery struct {
	dashboardID  string
	artifactType string
	limit        int
	fromMS       int64
	toMS         int64
	hasRange     bool
}

func buildQuery(query port.ArtifactListQuery) (listQuery, error) {
	q := listQuery{
		dashboardID:  strings.TrimSpace(query.DashboardID),
		artifactType: strings.TrimSpace(query.ArtifactType),
		limit:        query.Limit,
	}
	if !dashboardIDPattern.MatchString(q.dashboardID) {
		return listQuery{}, fmt.Errorf("invalid dashboard_id")
	}
	if q.limit <= 0 {
		q.limit = defaultListLimit
	}
	if q.limit > maxListLimit {
		q.limit = maxListLimit
	}

	var err error
	q.fromMS, q.toMS, q.hasRange, err = normalizeTimeRange(query.From, query.To)
	if err != nil {
		return listQuery{}, err
	}
	return q, nil
}

func (q listQuery) mode() cursorMode {
	if q.artifactType != "" {
		return cursorModeType
	}
	return cursorModeDashboard
}

func (q listQuery) cursorFilter() cursorPayload {
	return cursorPayload{
		Mode:         q.mode(),
		DashboardID:  q.dashboardID,
		ArtifactType: q.artifactType,
		FromMS:       q.fromMS,
		ToMS:         q.toMS,
	}
}

// input строит Query: по основному ключу или по GSI1, если задан тип.
func (q listQuery) input(tableName string, strongReads bool) *dynamodb.QueryInput {
	limit := int32(q.limit)
	forward := false
	input := &dynamodb.QueryInput{
		TableName:                 &tableName,
		Limit:                     &limit,
		ScanIndexForward:          &forward,
		ExpressionAttributeNames:  map[string]string{},
		ExpressionAttributeValues: map[string]types.AttributeValue{},
	}

	pkAttr, skAttr, pk := attrPK, attrSK, buildPK(q.dashboardID)
	if q.mode() == cursorModeType {
		index := artifactsByTypeIndex
		input.IndexName = &index
		pkAttr, skAttr, pk = attrGSI1PK, attrGSI1SK, buildGSI1PK(q.dashboardID, q.artifactType)
	} else {
		// GSI не поддерживает строгое чтение
		input.ConsistentRead = &strongReads
	}

	input.ExpressionAttributeNames["#pk"] = pkAttr
	input.ExpressionAttributeValues[":pk"] = &types.AttributeValueMemberS{Value: pk}
	condition := "#pk = :pk"
	if q.hasRange {
		input.ExpressionAttributeNames["#sk"] = skAttr
		input.ExpressionAttributeValues[":from"] = &types.AttributeValueMemberS{Value: sortLowerBound(q.fromMS)}
		input.ExpressionAttributeValues[":to"] = &types.AttributeValueMemberS{Value: sortUpperBound(q.toMS)}
		condition += " AND #sk BETWEEN :from AND :to"
	}
	input.KeyConditionExpression = &condition

	return input
}

func toItem(record port.ArtifactMetadata) (map[string]types.AttributeValue, error) {
	dashboardID := strings.TrimSpace(record.DashboardID)
	artifactType := strings.TrimSpace(record.ArtifactType)
	s3Key := strings.TrimSpace(record.S3Key)
	if !dashboardIDPattern.MatchString(dashboardID) {
		return nil, fmt.Errorf("invalid dashboard_id")
	}
	if artifactType == "" {
		return nil, fmt.Errorf("artifact_type is required")
	}
	if s3Key == "" {
		return nil, fmt.Errorf("s3_key is required")
	}

	capturedAt := record.CapturedAt.UTC()
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	lastModified := record.LastModified.UTC()
	if lastModified.IsZero() {
		lastModified = capturedAt
	}
	capturedAtMS := capturedAt.UnixMilli()

	item := map[string]types.AttributeValue{
		attrPK:           &types.AttributeValueMemberS{Value: buildPK(dashboardID)},
		attrSK:           &types.AttributeValueMemberS{Value: buildSK(capturedAtMS, artifactType, s3Key)},
		attrGSI1PK:       &types.AttributeValueMemberS{Value: buildGSI1PK(dashboardID, artifactType)},
		attrGSI1SK:       &types.AttributeValueMemberS{Value: buildGSI1SK(capturedAtMS, s3Key)},
		attrDashboardID:  &types.AttributeValueMemberS{Value: dashboardID},
		attrArtifactType: &types.AttributeValueMemberS{Value: artifactType},
		attrS3Key:        &types.AttributeValueMemberS{Value: s3Key},
		attrCapturedAt:   numberValue(capturedAtMS),
		attrCreatedAt:    numberValue(lastModified.UnixMilli()),
	}

	setString := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			item[name] = &types.AttributeValueMemberS{Value: value}
		}
	}
	setString(attrCycleID, record.CycleID)
	setString(attrURL, record.URL)
	setString(attrContentType, record.ContentType)

	if record.SizeBytes > 0 {
		item[attrSizeBytes] = numberValue(record.SizeBytes)
	}
	if !record.ExpiresAt.IsZero() {
		item[attrExpiresAt] = numberValue(record.ExpiresAt.UTC().Unix())
	}

	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (port.ArtifactMetadata, error) {
	var record port.ArtifactMetadata
	var err error

	if record.DashboardID, err = attrString(item, attrDashboardID); err != nil {
		return port.ArtifactMetadata{}, err
	}
	if record.ArtifactType, err = attrString(item, attrArtifactType); err != nil {
		return port.ArtifactMetadata{}, err
	}
	if record.S3Key, err = attrString(item, attrS3Key); err != nil {
		return port.ArtifactMetadata{}, err
	}

	capturedAtMS, err := attrInt64(item, attrCapturedAt)
	if err != nil {
		return port.ArtifactMetadata{}, err
	}
	createdAtMS, err := attrInt64(item, attrCreatedAt)
	if err != nil {
		return port.ArtifactMetadata{}, err
	}

	record.CycleID = optionalString(item, attrCycleID)
	record.URL = optionalString(item, attrURL)
	record.ContentType = optionalString(item, attrContentType)
	record.SizeBytes = optionalInt64(item, attrSizeBytes)
	record.CapturedAt = time.UnixMilli(capturedAtMS).UTC()
	record.LastModified = time.UnixMilli(createdAtMS).UTC()
	if expires := optionalInt64(item, attrExpiresAt); expires > 0 {
		record.ExpiresAt = time.Unix(expires, 0).UTC()
	}

	return record, nil
}

func numberValue(v int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}
