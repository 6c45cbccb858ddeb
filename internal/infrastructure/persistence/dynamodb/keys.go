package dynamodb

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type cursorMode string

const (
	cursorModeDashboard cursorMode = "dashboard"
	cursorModeType      cursorMode = "type"
)

// cursorPayload - непрозрачный курсор пагинации. Фильтры запроса зашиты
// внутрь, курсор нельзя переиспользовать с другими параметрами.
type cursorPayload struct {
	Mode         cursorMode             `json:"mode"`
	DashboardID  string                 `json:"dashboard_id"`
	ArtifactType string                 `json:"artifact_type,omitempty"`
	FromMS       int64                  `json:"from_ms,omitempty"`
	ToMS         int64                  `json:"to_ms,omitempty"`
	Key          map[string]cursorValue `json:"key"`
}

type cursorValue struct {
	S string `json:"s,omitempty"`
	N string `json:"n,omitempty"`
}

func (c cursorPayload) sameFilter(other cursorPayload) bool {
	return c.Mode == other.Mode &&
		c.DashboardID == other.DashboardID &&
		c.ArtifactType == other.ArtifactType &&
		c.FromMS == other.FromMS &&
		c.ToMS == other.ToMS
}

func normalizeTimeRange(from, to time.Time) (int64, int64, bool, error) {
	if from.IsZero() && to.IsZero() {
		return 0, math.MaxInt64, false, nil
	}

	fromMS, toMS := int64(0), int64(math.MaxInt64)
	if !from.IsZero() {
		fromMS = from.UTC().UnixMilli()
	}
	if !to.IsZero() {
		toMS = to.UTC().UnixMilli()
	}
	if fromMS > toMS {
		return 0, 0, false, fmt.Errorf("from must be less than or equal to to")
	}

	return fromMS, toMS, true, nil
}

func buildPK(dashboardID string) string {
	return "DASHBOARD#" + dashboardID
}

func buildSK(capturedAtMS int64, artifactType, s3Key string) string {
	return fmt.Sprintf("TS#%013d#TYPE#%s#KEY#%s", capturedAtMS, artifactType, objectHash(s3Key))
}

func buildGSI1PK(dashboardID, artifactType string) string {
	return fmt.Sprintf("DASHBOARD#%s#TYPE#%s", dashboardID, artifactType)
}

func buildGSI1SK(capturedAtMS int64, s3Key string) string {
	return fmt.Sprintf("TS#%013d#KEY#%s", capturedAtMS, objectHash(s3Key))
}

// Оба ключа сортировки начинаются с TS#millis#, поэтому границы общие.
func sortLowerBound(tsMS int64) string {
	return fmt.Sprintf("TS#%013d#", tsMS)
}

func sortUpperBound(tsMS int64) string {
	return fmt.Sprintf("TS#%013d#~", tsMS)
}

func objectHash(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:8])
}

func encodeCursor(key map[string]types.AttributeValue, filter cursorPayload) (string, error) {
	filter.Key = make(map[string]cursorValue, len(key))
	for name, raw := range key {
		switch v := raw.(type) {
		case *types.AttributeValueMemberS:
			filter.Key[name] = cursorValue{S: v.Value}
		case *types.AttributeValueMemberN:
			filter.Key[name] = cursorValue{N: v.Value}
		default:
			return "", fmt.Errorf("unsupported cursor attribute type for %s", name)
		}
	}

	serialized, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(serialized), nil
}

func decodeCursor(cursor string, filter cursorPayload) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}

	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	if !payload.sameFilter(filter) {
		return nil, fmt.Errorf("cursor does not match query filters")
	}

	key := make(map[string]types.AttributeValue, len(payload.Key))
	for name, v := range payload.Key {
		switch {
		case v.S != "":
			key[name] = &types.AttributeValueMemberS{Value: v.S}
		case v.N != "":
			key[name] = &types.AttributeValueMemberN{Value: v.N}
		default:
			return nil, fmt.Errorf("invalid cursor")
		}
	}
	return key, nil
}

func attrString(item map[string]types.AttributeValue, name string) (string, error) {
	raw, ok := item[name]
	if !ok {
		return "", fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberS)
	if !ok || strings.TrimSpace(value.Value) == "" {
		return "", fmt.Errorf("invalid attribute %s", name)
	}
	return value.Value, nil
}

func optionalString(item map[string]types.AttributeValue, name string) string {
	if value, ok := item[name].(*types.AttributeValueMemberS); ok {
		return value.Value
	}
	return ""
}

func attrInt64(item map[string]types.AttributeValue, name string) (int64, error) {
	raw, ok := item[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %s", name)
	}
	value, ok := raw.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("invalid attribute %s", name)
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid attribute %s: %w", name, err)
	}
	return parsed, nil
}

func optionalInt64(item map[string]types.AttributeValue, name string) int64 {
	value, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
