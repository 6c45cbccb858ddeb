package entity

// MetricEntry - одна карточка показателя с дашборда. Все значения хранятся
// строками в том виде, в каком их отдал анализатор ("1,024.5", "+5%").
type MetricEntry struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Comparison string `json:"comparison"`
	Status     string `json:"status"`
}

// MetricRecord - результат разбора одного снимка дашборда.
type MetricRecord struct {
	UpdateTime     string        `json:"update_time"`
	ComparisonDate string        `json:"comparison_date"`
	Metrics        []MetricEntry `json:"metrics"`
}

// IsUsable сообщает, можно ли публиковать запись. Пустой набор метрик
// никогда не попадает в состояние.
func (r *MetricRecord) IsUsable() bool {
	return r != nil && len(r.Metrics) > 0
}

// Clone возвращает глубокую копию, чтобы читатели не делили слайс с писателем.
func (r *MetricRecord) Clone() *MetricRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Metrics = append([]MetricEntry(nil), r.Metrics...)
	return &out
}
