package extraction

import (
	"fmt"
	"time"

	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/domain/valueobject"
)

// Статусы, которые видит клиент в поле status.
const (
	StatusInitializing       = "Initializing..."
	StatusCredentialMissing  = "Fatal error: DASHBOARD_COOKIE (LIFE_DATA_COOKIE) is not configured."
	StatusPageUnverifiable   = "Fatal error: unable to verify the target page. The cookie may have expired."
	StatusSteady             = "Target page verified, entering refresh loop."
	StatusAnalysisEmpty      = "AI analysis did not extract any usable data."
	StatusNotReady           = "Page verification failed, the session may have been logged out."
	StatusCycleFailed        = "Background task error, retrying..."
	statusUpdatedFormat      = "Data updated. Next refresh in %d seconds."
	statusSessionOpenFormat  = "Fatal error: failed to open browser session: %v"
	statusNavigationFormat   = "Fatal error: initial navigation failed: %v"
	statusSessionFatalFormat = "Fatal browser session error: %v"
)

// UpdatedStatus - статус успешного цикла с временем до следующего обновления.
func UpdatedStatus(interval time.Duration) string {
	return fmt.Sprintf(statusUpdatedFormat, int(interval.Round(time.Second).Seconds()))
}

// CycleOutcome - результат одного цикла. Record заполнен только для Updated,
// Err - только для Failed.
type CycleOutcome struct {
	Kind   valueobject.OutcomeKind
	Record *entity.MetricRecord
	Err    error
}

func Updated(record *entity.MetricRecord) CycleOutcome {
	return CycleOutcome{Kind: valueobject.OutcomeUpdated, Record: record}
}

func AnalysisEmpty() CycleOutcome {
	return CycleOutcome{Kind: valueobject.OutcomeAnalysisEmpty}
}

func NotReady() CycleOutcome {
	return CycleOutcome{Kind: valueobject.OutcomeNotReady}
}

func Failed(cause error) CycleOutcome {
	return CycleOutcome{Kind: valueobject.OutcomeFailed, Err: cause}
}

// StatusText - текст статуса для исхода.
func (o CycleOutcome) StatusText(interval time.Duration) string {
	switch o.Kind {
	case valueobject.OutcomeUpdated:
		return UpdatedStatus(interval)
	case valueobject.OutcomeAnalysisEmpty:
		return StatusAnalysisEmpty
	case valueobject.OutcomeNotReady:
		return StatusNotReady
	default:
		return StatusCycleFailed
	}
}

// CycleResult - все, что известно о завершенном цикле.
type CycleResult struct {
	CycleID    string
	Outcome    CycleOutcome
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time

	// Fatal не nil, если сессия браузера больше непригодна.
	Fatal error
	// Canceled - цикл прерван остановкой процесса, состояние не менялось.
	Canceled bool
}

// IsCycle - false для уведомлений о смене фазы (без цикла).
func (r CycleResult) IsCycle() bool {
	return r.CycleID != ""
}

func (r CycleResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
