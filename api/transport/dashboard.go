package transport

import (
	"encoding/json"

	"github.com/fastygo/classroom/domain"
)

// DashboardStats reads the dashboard payload. Counters that are missing or
// not JSON numbers count as zero.
func DashboardStats(payload json.RawMessage) domain.DashboardStats {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return domain.DashboardStats{}
	}
	return domain.DashboardStats{
		Classes:     number(fields["classes"]),
		Assignments: number(fields["assignments"]),
		Upcoming:    number(fields["upcoming"]),
	}
}

func number(raw json.RawMessage) int {
	var n float64
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return 0
	}
	return int(n)
}
