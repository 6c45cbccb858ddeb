package extraction

import (
	"sync/atomic"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/application/dto"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// Snapshot - неизменяемый снимок состояния. После публикации
// ни сам снимок, ни Record не модифицируются.
type Snapshot struct {
	Phase         valueobject.LoopPhase
	Status        string
	Record        *entity.MetricRecord
	LastOutcome   valueobject.OutcomeKind
	LastCycleID   string
	LastCycleAt   time.Time
	LastUpdatedAt time.Time
	Cycles        uint64
	Updates       uint64
	StartedAt     time.Time
	Interval      time.Duration
}

// SharedState хранит пару (status, record) и сопутствующие поля.
// Писатель один (фоновый цикл), читателей сколько угодно; каждая запись -
// подмена указателя на новый снимок, поэтому чтение никогда не видит
// статус от одного цикла и запись от другого.
type SharedState struct {
	cur atomic.Pointer[Snapshot]
}

func NewSharedState(interval time.Duration) *SharedState {
	s := &SharedState{}
	s.cur.Store(&Snapshot{
		Phase:     valueobject.PhaseBootstrapping,
		Status:    StatusInitializing,
		StartedAt: time.Now(),
		Interval:  interval,
	})
	return s
}

// Read возвращает статус и последнюю запись (nil до первого успеха).
func (s *SharedState) Read() (string, *entity.MetricRecord) {
	snap := s.cur.Load()
	return snap.Status, snap.Record
}

// Snapshot возвращает полный снимок состояния.
func (s *SharedState) Snapshot() Snapshot {
	return *s.cur.Load()
}

// CurrentState - снимок состояния в виде DTO.
func (s *SharedState) CurrentState() *dto.StateDTO {
	return s.Snapshot().ToDTO()
}

// Write заменяет статус и, если record не nil, запись. nil оставляет
// прежнюю запись: однажды опубликованная запись не пропадает.
func (s *SharedState) Write(status string, record *entity.MetricRecord) {
	s.update(func(next *Snapshot) {
		next.Status = status
		if record != nil {
			next.Record = record.Clone()
		}
	})
}

// commitCycle фиксирует результат цикла одной подменой.
func (s *SharedState) commitCycle(result CycleResult) Snapshot {
	return s.update(func(next *Snapshot) {
		next.Status = result.Status
		next.LastOutcome = result.Outcome.Kind
		next.LastCycleID = result.CycleID
		next.LastCycleAt = result.FinishedAt
		next.Cycles++
		if result.Outcome.Kind == valueobject.OutcomeUpdated && result.Outcome.Record.IsUsable() {
			next.Record = result.Outcome.Record.Clone()
			next.LastUpdatedAt = result.FinishedAt
			next.Updates++
		}
	})
}

func (s *SharedState) setPhase(phase valueobject.LoopPhase, status string) Snapshot {
	return s.update(func(next *Snapshot) {
		next.Phase = phase
		next.Status = status
	})
}

func (s *SharedState) update(fn func(next *Snapshot)) Snapshot {
	for {
		old := s.cur.Load()
		next := *old
		fn(&next)
		if s.cur.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// ToDTO конвертирует снимок в DTO для HTTP и WebSocket.
func (s Snapshot) ToDTO() *dto.StateDTO {
	out := &dto.StateDTO{
		Phase:       s.Phase.String(),
		Status:      s.Status,
		Data:        s.Record,
		LastOutcome: s.LastOutcome.String(),
		LastCycleID: s.LastCycleID,
		Cycles:      s.Cycles,
		Updates:     s.Updates,
		Interval:    s.Interval.String(),
	}
	if !s.LastCycleAt.IsZero() {
		t := s.LastCycleAt.UTC()
		out.LastCycleAt = &t
	}
	if !s.LastUpdatedAt.IsZero() {
		t := s.LastUpdatedAt.UTC()
		out.LastUpdatedAt = &t
	}
	return out
}
