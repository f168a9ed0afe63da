package models

import "time"

// HistoryPoint is one day of the weekly histogram. Datetime is the bucket's
// lower bound in epoch milliseconds.
type HistoryPoint struct {
	Datetime int64 `json:"datetime"`
	Count    int   `json:"count"`
}

// WeeklyHistory holds seven buckets per direction, index 0 is today.
type WeeklyHistory struct {
	Entry  []HistoryPoint `json:"entry"`
	Depart []HistoryPoint `json:"depart"`
}

// StatisticsReport is the dashboard payload for one scope.
type StatisticsReport struct {
	StaffCount           int           `json:"staffCount"`
	ContractorCount      int           `json:"contractorCount"`
	VisitCount           int           `json:"visitCount"`
	UnmatchedDepartCount int           `json:"unmatchedDepartCount"`
	WeeklyHistory        WeeklyHistory `json:"weeklyHistory"`
	GeneratedAt          time.Time     `json:"generatedAt"`
}

// IncompleteTotal is the number of distinct people still inside.
func (r *StatisticsReport) IncompleteTotal() int {
	return r.StaffCount + r.ContractorCount + r.VisitCount
}
