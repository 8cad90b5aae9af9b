package domain

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusForTemperature_Boundaries(t *testing.T) {
	cases := []struct {
		temp int
		want TemperatureStatus
	}{
		{-20, StatusCold},
		{0, StatusCold},
		{25, StatusCold},
		{26, StatusWarm},
		{50, StatusWarm},
		{51, StatusHot},
		{75, StatusHot},
		{76, StatusCritical},
		{100, StatusCritical},
		{-500, StatusCold},
		{500, StatusCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusForTemperature(tc.temp), "temp=%d", tc.temp)
	}
}

func TestApplyTemperatureImpact_ClampsAndKeepsBandInSync(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := &Lead{Stage: StageQualified, DealType: DealTypeApply}
	l.SetTemperature(0)

	for i := 0; i < 2000; i++ {
		l.ApplyTemperatureImpact(rng.Intn(121) - 60)
		assert.GreaterOrEqual(t, l.Temperature, MinTemperature)
		assert.LessOrEqual(t, l.Temperature, MaxTemperature)
		assert.Equal(t, StatusForTemperature(l.Temperature), l.TemperatureStatus)
		assert.Equal(t, Probability(l.Stage, l.Temperature, l.DealType), l.Probability)
	}
}

func TestClampImpact(t *testing.T) {
	assert.Equal(t, 120, MaxImpact)
	assert.Equal(t, MaxImpact, ClampImpact(math.MaxInt))
	assert.Equal(t, -MaxImpact, ClampImpact(math.MinInt))
	assert.Equal(t, 15, ClampImpact(15))
	assert.Equal(t, -10, ClampImpact(-10))
}

func TestApplyTemperatureImpact_HugeDeltaSaturates(t *testing.T) {
	l := &Lead{Stage: StageQualified, DealType: DealTypeApply}
	l.SetTemperature(10)

	l.ApplyTemperatureImpact(math.MaxInt)
	assert.Equal(t, MaxTemperature, l.Temperature)
	assert.Equal(t, StatusCritical, l.TemperatureStatus)

	l.ApplyTemperatureImpact(math.MinInt)
	assert.Equal(t, MinTemperature, l.Temperature)
	assert.Equal(t, StatusCold, l.TemperatureStatus)
}

func TestApplyTemperatureImpact_Objection(t *testing.T) {
	l := &Lead{Stage: StageLead, DealType: DealTypeSupply}
	l.SetTemperature(5)

	l.ApplyTemperatureImpact(ActivityObjectionRaised.TemperatureImpact())

	assert.Equal(t, -5, l.Temperature)
	assert.Equal(t, StatusCold, l.TemperatureStatus)
}

func TestProbability(t *testing.T) {
	cases := []struct {
		name  string
		stage Stage
		temp  int
		deal  DealType
		want  int
	}{
		{"new supply lead", StageLead, 0, DealTypeSupply, 12},
		{"hot supply_apply negotiation", StageNegotiation, 60, DealTypeSupplyApply, 50},
		{"apply unchanged", StageQualified, 30, DealTypeApply, 31},
		{"negative temperature floors down", StageLead, -5, DealTypeApply, 8},
		{"floor at minimum", StageLead, -20, DealTypeSupplyApply, 5},
		{"closing critical supply clamps", StageClosing, 100, DealTypeSupply, 100},
		{"won pinned", StageWon, -20, DealTypeSupplyApply, 100},
		{"lost pinned", StageLost, 100, DealTypeSupply, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Probability(tc.stage, tc.temp, tc.deal)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Probability(tc.stage, tc.temp, tc.deal))
		})
	}
}

func TestProbability_AlwaysInRange(t *testing.T) {
	for _, st := range AllStages {
		for _, d := range AllDealTypes {
			for temp := MinTemperature; temp <= MaxTemperature; temp++ {
				p := Probability(st, temp, d)
				if p < 0 || p > 100 {
					t.Fatalf("probability(%s,%d,%s)=%d out of range", st, temp, d, p)
				}
			}
		}
	}
}
