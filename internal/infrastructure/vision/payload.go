package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
)

// StripCodeFence убирает markdown-обертку ```json ... ```, которую модели
// добавляют вопреки инструкции.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// первая строка - язык (json, JSON) или пусто
		if lang := strings.TrimSpace(s[:nl]); !strings.ContainsAny(lang, "{[") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// flexString принимает как строку, так и число/bool: модели иногда
// отдают "value": 1024 вместо "1024".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return fmt.Errorf("unexpected composite value %s", string(data))
	}
	*f = flexString(string(data))
	return nil
}

type wireEntry struct {
	Name       flexString `json:"name"`
	Value      flexString `json:"value"`
	Comparison flexString `json:"comparison"`
	Status     flexString `json:"status"`
}

type wireRecord struct {
	UpdateTime     flexString  `json:"update_time"`
	ComparisonDate flexString  `json:"comparison_date"`
	Metrics        []wireEntry `json:"metrics"`
}

// ParseRecord разбирает ответ модели в запись. Любая ошибка разбора
// оборачивает port.ErrMalformedAnalysis.
func ParseRecord(raw string) (*entity.MetricRecord, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", port.ErrMalformedAnalysis)
	}

	var w wireRecord
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		// модель могла добавить текст вокруг объекта
		start := strings.IndexByte(body, '{')
		end := strings.LastIndexByte(body, '}')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: %v", port.ErrMalformedAnalysis, err)
		}
		w = wireRecord{}
		if err2 := json.Unmarshal([]byte(body[start:end+1]), &w); err2 != nil {
			return nil, fmt.Errorf("%w: %v", port.ErrMalformedAnalysis, err2)
		}
	}

	record := &entity.MetricRecord{
		UpdateTime:     strings.TrimSpace(string(w.UpdateTime)),
		ComparisonDate: strings.TrimSpace(string(w.ComparisonDate)),
		Metrics:        make([]entity.MetricEntry, 0, len(w.Metrics)),
	}
	for _, m := range w.Metrics {
		record.Metrics = append(record.Metrics, entity.MetricEntry{
			Name:       strings.TrimSpace(string(m.Name)),
			Value:      strings.TrimSpace(string(m.Value)),
			Comparison: strings.TrimSpace(string(m.Comparison)),
			Status:     strings.TrimSpace(string(m.Status)),
		})
	}
	return record, nil
}
