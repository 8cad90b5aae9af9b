package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsForwardMove(t *testing.T) {
	assert.True(t, IsForwardMove(StageLead, StageQualified))
	assert.True(t, IsForwardMove(StageQualified, StageNegotiation))
	assert.True(t, IsForwardMove(StageLead, StageClosing))
	assert.True(t, IsForwardMove(StageClosing, StageWon))
	assert.False(t, IsForwardMove(StageNegotiation, StageQualified))
	assert.False(t, IsForwardMove(StageQualified, StageQualified))
	assert.False(t, IsForwardMove(StageClosing, StageLost))
	assert.False(t, IsForwardMove(StageLost, StageQualified))
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage(" Negotiation ")
	require.NoError(t, err)
	assert.Equal(t, StageNegotiation, s)

	_, err = ParseStage("prospect")
	var ve *ErrValidation
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "stage", ve.Field)
}

func TestFormatLeadNumber(t *testing.T) {
	at := time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "L/24/MAR/00007", FormatLeadNumber(at, 7))
	assert.Equal(t, "L/05/DEC/12345", FormatLeadNumber(time.Date(2005, time.December, 1, 0, 0, 0, 0, time.UTC), 12345))
}

func TestDaysInStage(t *testing.T) {
	entered := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := &Lead{StageEnteredAt: entered}

	assert.Equal(t, 0, l.DaysInStage(entered.Add(23*time.Hour)))
	assert.Equal(t, 3, l.DaysInStage(entered.Add(72*time.Hour)))
	assert.Equal(t, 0, l.DaysInStage(entered.Add(-time.Hour)))
}

func TestCreateLeadRequest_Validate(t *testing.T) {
	ok := CreateLeadRequest{ProjectName: "Warehouse roof", DealType: DealTypeApply}
	require.NoError(t, ok.Validate())

	missing := CreateLeadRequest{DealType: DealTypeApply}
	assert.Error(t, missing.Validate())

	badType := CreateLeadRequest{ProjectName: "x", DealType: "install"}
	assert.Error(t, badType.Validate())

	negative := CreateLeadRequest{ProjectName: "x", DealType: DealTypeSupply, EstimatedValue: decimal.NewFromInt(-1)}
	assert.Error(t, negative.Validate())
}

func TestUpdateLeadRequest_Apply(t *testing.T) {
	l := &Lead{ProjectName: "Old", Stage: StageNegotiation, DealType: DealTypeApply, Temperature: 60}
	l.Probability = Probability(l.Stage, l.Temperature, l.DealType)

	name := "New"
	deal := DealTypeSupplyApply
	quoted := decimal.RequireFromString("1250.50")
	req := UpdateLeadRequest{ProjectName: &name, DealType: &deal, QuotedValue: &quoted}
	require.NoError(t, req.Apply(l))

	assert.Equal(t, "New", l.ProjectName)
	assert.Equal(t, DealTypeSupplyApply, l.DealType)
	assert.Equal(t, 50, l.Probability)
	assert.True(t, l.QuotedValue.Equal(quoted))
	assert.Equal(t, StageNegotiation, l.Stage)

	empty := ""
	assert.Error(t, (&UpdateLeadRequest{ProjectName: &empty}).Apply(l))
}

func TestTemperatureUpdateRequest_Validate(t *testing.T) {
	five := 5
	assert.NoError(t, (&TemperatureUpdateRequest{ActivityType: ActivitySiteVisit}).Validate())
	assert.NoError(t, (&TemperatureUpdateRequest{Adjustment: &five}).Validate())
	assert.Error(t, (&TemperatureUpdateRequest{}).Validate())
	assert.Error(t, (&TemperatureUpdateRequest{ActivityType: ActivitySiteVisit, Adjustment: &five}).Validate())
	assert.Error(t, (&TemperatureUpdateRequest{ActivityType: "dance"}).Validate())
}

func TestLeadFilter_Matches(t *testing.T) {
	l := &Lead{
		LeadNumber:        "L/24/MAR/00001",
		ProjectName:       "Harbour Warehouse Roof",
		ContactName:       "Dana",
		Stage:             StageQualified,
		DealType:          DealTypeSupply,
		TemperatureStatus: StatusWarm,
		AssignedTo:        "rep-1",
		Source:            "Canvassing",
	}

	assert.True(t, LeadFilter{}.Matches(l))
	assert.True(t, LeadFilter{Stage: StageQualified, DealType: DealTypeSupply}.Matches(l))
	assert.True(t, LeadFilter{Query: "warehouse"}.Matches(l))
	assert.True(t, LeadFilter{Query: "00001"}.Matches(l))
	assert.True(t, LeadFilter{Source: "canvassing"}.Matches(l))
	assert.True(t, LeadFilter{ActiveOnly: true}.Matches(l))
	assert.False(t, LeadFilter{Status: StatusHot}.Matches(l))
	assert.False(t, LeadFilter{AssignedTo: "rep-2"}.Matches(l))
	assert.False(t, LeadFilter{Query: "bridge"}.Matches(l))

	l.Stage = StageLost
	assert.False(t, LeadFilter{ActiveOnly: true}.Matches(l))
}

func TestClone_IsDeep(t *testing.T) {
	fv := decimal.NewFromInt(10)
	now := time.Now()
	l := &Lead{FinalValue: &fv, WonAt: &now}
	c := l.Clone()

	*c.FinalValue = decimal.NewFromInt(99)
	later := now.Add(time.Hour)
	c.WonAt = &later

	assert.True(t, l.FinalValue.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, now, *l.WonAt)
}
