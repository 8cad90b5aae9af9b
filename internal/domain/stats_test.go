package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStats(t *testing.T) {
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	final := decimal.NewFromInt(900)

	leads := []*Lead{
		{ID: "a", Stage: StageQualified, DealType: DealTypeSupply, Temperature: 40, Probability: 40,
			EstimatedValue: decimal.NewFromInt(1000), StageEnteredAt: now.AddDate(0, 0, -2)},
		{ID: "b", Stage: StageNegotiation, DealType: DealTypeApply, Temperature: 80, Probability: 50,
			EstimatedValue: decimal.NewFromInt(2000), StageEnteredAt: now.AddDate(0, 0, -45)},
		{ID: "c", Stage: StageWon, DealType: DealTypeApply, Temperature: 100, Probability: 100,
			EstimatedValue: decimal.NewFromInt(1000), FinalValue: &final},
		{ID: "d", Stage: StageLost, DealType: DealTypeSupplyApply, Temperature: -20,
			EstimatedValue: decimal.NewFromInt(500)},
		{ID: "e", Stage: StageLost, DealType: DealTypeSupply, Temperature: -20,
			EstimatedValue: decimal.NewFromInt(100)},
	}

	s := ComputeStats(leads, now, 30)

	assert.Equal(t, 5, s.TotalLeads)
	assert.Equal(t, 2, s.ActiveLeads)
	assert.Equal(t, 1, s.WonLeads)
	assert.Equal(t, 2, s.LostLeads)
	assert.True(t, s.TotalActiveValue.Equal(decimal.NewFromInt(3000)))
	assert.True(t, s.WeightedActiveValue.Equal(decimal.NewFromInt(1400)))
	assert.True(t, s.WonValue.Equal(decimal.NewFromInt(900)))
	assert.InDelta(t, 60.0, s.AverageTemperature, 0.0001)
	assert.InDelta(t, 1.0/3.0, s.ConversionRate, 0.0001)
	assert.Equal(t, 1, s.ByStage[StageQualified])
	assert.Equal(t, 2, s.ByStage[StageLost])
	assert.Equal(t, 0, s.ByStage[StageClosing])
	assert.Equal(t, 2, s.ByDealType[DealTypeApply])
	assert.Equal(t, 2, s.ByTemperatureStatus[StatusCold])
	assert.Equal(t, 2, s.ByTemperatureStatus[StatusCritical])
	assert.Equal(t, 1, s.ByTemperatureStatus[StatusWarm])

	require.Len(t, s.StaleLeads, 1)
	assert.Equal(t, "b", s.StaleLeads[0].ID)
	assert.Equal(t, 45, s.StaleLeads[0].DaysInStage)
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil, time.Now(), 30)
	assert.Zero(t, s.TotalLeads)
	assert.Zero(t, s.ConversionRate)
	assert.Zero(t, s.AverageTemperature)
	assert.NotNil(t, s.StaleLeads)
}

func TestNewListResponse(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p1 := NewListResponse(items, 1, 2)
	assert.Equal(t, []int{1, 2}, p1.Data)
	assert.True(t, p1.HasMore)
	assert.Equal(t, 5, p1.Total)

	p3 := NewListResponse(items, 3, 2)
	assert.Equal(t, []int{5}, p3.Data)
	assert.False(t, p3.HasMore)

	past := NewListResponse(items, 9, 2)
	assert.Empty(t, past.Data)
	assert.NotNil(t, past.Data)

	huge := NewListResponse(items, math.MaxInt, 20)
	assert.Empty(t, huge.Data)
	assert.False(t, huge.HasMore)
	assert.Equal(t, 5, huge.Total)

	empty := NewListResponse([]int{}, 3, 0)
	assert.Empty(t, empty.Data)
	assert.NotNil(t, empty.Data)
}
