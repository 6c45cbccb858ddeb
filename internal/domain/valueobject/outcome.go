package valueobject

// OutcomeKind - категория результата одного цикла извлечения.
type OutcomeKind string

const (
	// OutcomeUpdated - запись распознана и опубликована.
	OutcomeUpdated OutcomeKind = "updated"
	// OutcomeAnalysisEmpty - анализатор ответил, но полезных метрик нет.
	OutcomeAnalysisEmpty OutcomeKind = "analysis_empty"
	// OutcomeNotReady - страница не прошла проверку готовности.
	OutcomeNotReady OutcomeKind = "not_ready"
	// OutcomeFailed - любая другая ошибка цикла.
	OutcomeFailed OutcomeKind = "failed"
)

// AllOutcomes возвращает все категории в стабильном порядке.
func AllOutcomes() []OutcomeKind {
	return []OutcomeKind{OutcomeUpdated, OutcomeAnalysisEmpty, OutcomeNotReady, OutcomeFailed}
}

func (k OutcomeKind) String() string {
	return string(k)
}

// CapturesDebugArtifact - для каких исходов сохраняется отладочный снимок.
func (k OutcomeKind) CapturesDebugArtifact() bool {
	return k == OutcomeNotReady || k == OutcomeFailed
}

// LoopPhase - состояние фонового цикла.
type LoopPhase string

const (
	PhaseBootstrapping LoopPhase = "bootstrapping"
	PhaseSteady        LoopPhase = "steady"
	PhaseTerminated    LoopPhase = "terminated"
)

// LoopPhases - все фазы в порядке прохождения.
func LoopPhases() []LoopPhase {
	return []LoopPhase{PhaseBootstrapping, PhaseSteady, PhaseTerminated}
}

func (p LoopPhase) String() string {
	return string(p)
}

// ArtifactKind - слот для снимка страницы на диске.
type ArtifactKind string

const (
	// ArtifactSnapshot - последний полный снимок успешного цикла.
	ArtifactSnapshot ArtifactKind = "snapshot"
	// ArtifactDebug - последний снимок неудачного цикла.
	ArtifactDebug ArtifactKind = "debug"
)

func (k ArtifactKind) String() string {
	return string(k)
}

func (k ArtifactKind) Validate() bool {
	return k == ArtifactSnapshot || k == ArtifactDebug
}
