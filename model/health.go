package model

// HealthStatus is the display state of a maintenance item.
type HealthStatus string

const (
	HealthGood   HealthStatus = "good"
	HealthCheck  HealthStatus = "check"
	HealthUrgent HealthStatus = "urgent"
)

// Thresholds on driven/interval.
const (
	checkRatio  = 0.8
	urgentRatio = 1.0
)

// MaintenanceHealth is the computed state of an item at a given mileage.
type MaintenanceHealth struct {
	Driven        int
	Remaining     int
	HealthPercent int
	Ratio         float64
	Status        HealthStatus
}

// Health derives the item's state from the vehicle's current mileage.
// An item with no km interval is always good.
func (m MaintenanceItem) Health(currentMileage int) MaintenanceHealth {
	driven := max(0, currentMileage-m.LastServiceMileage)
	h := MaintenanceHealth{Driven: driven, Status: HealthGood, HealthPercent: 100}
	if m.IntervalKm <= 0 {
		return h
	}
	h.Ratio = float64(driven) / float64(m.IntervalKm)
	h.Remaining = max(0, m.IntervalKm-driven)
	h.HealthPercent = min(100, max(0, int((1-h.Ratio)*100)))
	switch {
	case h.Ratio >= urgentRatio:
		h.Status = HealthUrgent
	case h.Ratio >= checkRatio:
		h.Status = HealthCheck
	}
	return h
}
