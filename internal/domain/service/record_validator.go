package service

import (
	"strings"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
)

// RecordValidator нормализует ответ анализатора перед публикацией (Domain Service).
type RecordValidator struct {
	allowed map[string]struct{}
}

// NewRecordValidator создает валидатор. Пустой allowlist пропускает любые показатели.
func NewRecordValidator(allowlist []string) *RecordValidator {
	v := &RecordValidator{}
	if len(allowlist) > 0 {
		v.allowed = make(map[string]struct{}, len(allowlist))
		for _, name := range allowlist {
			if name = strings.TrimSpace(name); name != "" {
				v.allowed[name] = struct{}{}
			}
		}
	}
	return v
}

// Normalize возвращает очищенную копию записи:
// обрезает пробелы, отбрасывает безымянные и не разрешенные показатели,
// повторы по имени (побеждает первый). Исходная запись не меняется.
// Результат может оказаться пустым - решение о публикации за вызывающим.
func (v *RecordValidator) Normalize(record *entity.MetricRecord) *entity.MetricRecord {
	if record == nil {
		return nil
	}

	out := &entity.MetricRecord{
		UpdateTime:     strings.TrimSpace(record.UpdateTime),
		ComparisonDate: strings.TrimSpace(record.ComparisonDate),
		Metrics:        make([]entity.MetricEntry, 0, len(record.Metrics)),
	}

	seen := make(map[string]struct{}, len(record.Metrics))
	for _, m := range record.Metrics {
		entry := entity.MetricEntry{
			Name:       strings.TrimSpace(m.Name),
			Value:      strings.TrimSpace(m.Value),
			Comparison: strings.TrimSpace(m.Comparison),
			Status:     strings.TrimSpace(m.Status),
		}
		if entry.Name == "" {
			continue
		}
		if !v.IsAllowed(entry.Name) {
			continue
		}
		if _, dup := seen[entry.Name]; dup {
			continue
		}
		seen[entry.Name] = struct{}{}
		out.Metrics = append(out.Metrics, entry)
	}

	return out
}

// IsAllowed проверяет имя показателя по allowlist.
func (v *RecordValidator) IsAllowed(name string) bool {
	if v.allowed == nil {
		return true
	}
	_, ok := v.allowed[name]
	return ok
}
