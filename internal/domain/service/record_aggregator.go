package service

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
)

// MetricSummary - сводка по одному показателю за период.
type MetricSummary struct {
	Name    string    `json:"name"`
	Samples int       `json:"samples"`
	Latest  string    `json:"latest"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Average float64   `json:"average"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
}

// RecordAggregator считает сводки по архиву записей (Domain Service).
// Значения хранятся строками; в расчет идут только разбираемые как число.
type RecordAggregator struct{}

func NewRecordAggregator() *RecordAggregator {
	return &RecordAggregator{}
}

// Summarize строит сводку по каждому показателю. Порядок - по имени.
func (a *RecordAggregator) Summarize(records []*entity.ArchivedRecord) []MetricSummary {
	sorted := a.SortByTime(records, false)

	byName := make(map[string]*MetricSummary)
	sums := make(map[string]float64)

	for _, r := range sorted {
		for _, m := range r.Record.Metrics {
			value, ok := ParseNumeric(m.Value)
			if !ok {
				continue
			}

			s, exists := byName[m.Name]
			if !exists {
				s = &MetricSummary{Name: m.Name, Min: value, Max: value, From: r.CapturedAt}
				byName[m.Name] = s
			}
			s.Samples++
			s.Latest = m.Value
			s.To = r.CapturedAt
			if value < s.Min {
				s.Min = value
			}
			if value > s.Max {
				s.Max = value
			}
			sums[m.Name] += value
		}
	}

	out := make([]MetricSummary, 0, len(byName))
	for name, s := range byName {
		s.Average = sums[name] / float64(s.Samples)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SortByTime сортирует копию слайса по времени снимка.
func (a *RecordAggregator) SortByTime(records []*entity.ArchivedRecord, descending bool) []*entity.ArchivedRecord {
	sorted := make([]*entity.ArchivedRecord, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].CapturedAt.After(sorted[j].CapturedAt)
		}
		return sorted[i].CapturedAt.Before(sorted[j].CapturedAt)
	})
	return sorted
}

// ParseNumeric разбирает значение карточки: "1,024.5", "¥3 200", "12%", "1.2万".
func ParseNumeric(raw string) (float64, bool) {
	value := strings.TrimSpace(raw)
	multiplier := 1.0
	switch {
	case strings.HasSuffix(value, "万"):
		multiplier, value = 1e4, strings.TrimSuffix(value, "万")
	case strings.HasSuffix(value, "亿"):
		multiplier, value = 1e8, strings.TrimSuffix(value, "亿")
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '¥', '￥', '$', '%', '+':
			return -1
		}
		return r
	}, value)
	if cleaned == "" {
		return 0, false
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f * multiplier, true
}
