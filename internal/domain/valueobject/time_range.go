package valueobject

import (
	"errors"
	"time"
)

// TimeRange - временной диапазон для выборки архива записей (Value Object).
type TimeRange struct {
	start time.Time
	end   time.Time
}

// NewTimeRange создает новый TimeRange с валидацией
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return TimeRange{}, errors.New("start and end times cannot be zero")
	}
	if start.After(end) {
		return TimeRange{}, errors.New("start time must be before end time")
	}

	return TimeRange{start: start, end: end}, nil
}

// ParseTimeRange разбирает пару RFC3339 строк. Пустой from означает
// "последние fallback", пустой to - текущий момент.
func ParseTimeRange(from, to string, fallback time.Duration, now time.Time) (TimeRange, error) {
	end := now
	if to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return TimeRange{}, errors.New("invalid 'to': expected RFC3339")
		}
		end = parsed
	}

	start := end.Add(-fallback)
	if from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return TimeRange{}, errors.New("invalid 'from': expected RFC3339")
		}
		start = parsed
	}

	return NewTimeRange(start, end)
}

func (tr TimeRange) Start() time.Time {
	return tr.start
}

func (tr TimeRange) End() time.Time {
	return tr.end
}

// Contains проверяет, попадает ли указанное время в диапазон (границы включительно).
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.start) && !t.After(tr.end)
}
