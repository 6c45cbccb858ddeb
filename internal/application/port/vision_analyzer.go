package port

import (
	"context"
	"errors"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
)

// ErrMalformedAnalysis - ответ анализатора не удалось разобрать в запись.
// Цикл трактует его так же, как пустой результат.
var ErrMalformedAnalysis = errors.New("malformed analysis payload")

// VisionAnalyzer превращает снимок дашборда в структурированную запись.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, image []byte) (*entity.MetricRecord, error)
}
