package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Pipeline statistics
// ============================================================

// PipelineStats is a read-only projection over the current lead set.
type PipelineStats struct {
	TotalLeads          int                       `json:"total_leads"`
	ActiveLeads         int                       `json:"active_leads"`
	WonLeads            int                       `json:"won_leads"`
	LostLeads           int                       `json:"lost_leads"`
	TotalActiveValue    decimal.Decimal           `json:"total_active_value"`
	WeightedActiveValue decimal.Decimal           `json:"weighted_active_value"`
	WonValue            decimal.Decimal           `json:"won_value"`
	AverageTemperature  float64                   `json:"average_temperature"`
	ConversionRate      float64                   `json:"conversion_rate"`
	ByStage             map[Stage]int             `json:"by_stage"`
	ByDealType          map[DealType]int          `json:"by_deal_type"`
	ByTemperatureStatus map[TemperatureStatus]int `json:"by_temperature_status"`
	StaleLeads          []StaleLead               `json:"stale_leads"`
	GeneratedAt         time.Time                 `json:"generated_at"`
}

// StaleLead is an active lead that has sat in its stage past the threshold.
type StaleLead struct {
	ID          string `json:"id"`
	LeadNumber  string `json:"lead_number"`
	ProjectName string `json:"project_name"`
	Stage       Stage  `json:"stage"`
	DaysInStage int    `json:"days_in_stage"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

// ComputeStats aggregates leads. Won value uses final_value when set,
// falling back to the estimate. Weighted value is estimate × probability.
func ComputeStats(leads []*Lead, now time.Time, staleDays int) PipelineStats {
	s := PipelineStats{
		TotalActiveValue:    decimal.Zero,
		WeightedActiveValue: decimal.Zero,
		WonValue:            decimal.Zero,
		ByStage:             make(map[Stage]int, len(AllStages)),
		ByDealType:          make(map[DealType]int, len(AllDealTypes)),
		ByTemperatureStatus: make(map[TemperatureStatus]int, len(AllTemperatureStatuses)),
		StaleLeads:          []StaleLead{},
		GeneratedAt:         now,
	}
	for _, st := range AllStages {
		s.ByStage[st] = 0
	}
	for _, d := range AllDealTypes {
		s.ByDealType[d] = 0
	}
	for _, b := range AllTemperatureStatuses {
		s.ByTemperatureStatus[b] = 0
	}

	hundred := decimal.NewFromInt(100)
	tempSum := 0
	for _, l := range leads {
		s.TotalLeads++
		s.ByStage[l.Stage]++
		s.ByDealType[l.DealType]++
		s.ByTemperatureStatus[StatusForTemperature(l.Temperature)]++

		switch l.Stage {
		case StageWon:
			s.WonLeads++
			if l.FinalValue != nil {
				s.WonValue = s.WonValue.Add(*l.FinalValue)
			} else {
				s.WonValue = s.WonValue.Add(l.EstimatedValue)
			}
		case StageLost:
			s.LostLeads++
		default:
			s.ActiveLeads++
			tempSum += l.Temperature
			s.TotalActiveValue = s.TotalActiveValue.Add(l.EstimatedValue)
			s.WeightedActiveValue = s.WeightedActiveValue.Add(
				l.EstimatedValue.Mul(decimal.NewFromInt(int64(l.Probability))).Div(hundred))
			if days := l.DaysInStage(now); staleDays > 0 && days >= staleDays {
				s.StaleLeads = append(s.StaleLeads, StaleLead{
					ID:          l.ID,
					LeadNumber:  l.LeadNumber,
					ProjectName: l.ProjectName,
					Stage:       l.Stage,
					DaysInStage: days,
					AssignedTo:  l.AssignedTo,
				})
			}
		}
	}

	if s.ActiveLeads > 0 {
		s.AverageTemperature = float64(tempSum) / float64(s.ActiveLeads)
	}
	if closed := s.WonLeads + s.LostLeads; closed > 0 {
		s.ConversionRate = float64(s.WonLeads) / float64(closed)
	}
	s.WeightedActiveValue = s.WeightedActiveValue.Round(2)
	return s
}
