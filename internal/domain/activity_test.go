package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivityType_TemperatureImpact(t *testing.T) {
	want := map[ActivityType]int{
		ActivityPhoneCall:           10,
		ActivityEmailSent:           5,
		ActivityWhatsAppMessage:     5,
		ActivityMeetingScheduled:    20,
		ActivityMeetingCompleted:    15,
		ActivitySiteVisit:           30,
		ActivitySampleSent:          15,
		ActivityQuoteSent:           25,
		ActivityQuoteRevised:        10,
		ActivityFollowUp:            5,
		ActivityDecisionMakerMet:    20,
		ActivityNoResponse:          -5,
		ActivityObjectionRaised:     -10,
		ActivityBudgetIssue:         -15,
		ActivityCompetitorInvolved:  -10,
		ActivityProjectDelayed:      -10,
		ActivityNote:                0,
		ActivityLeadCreated:         0,
		ActivityStageChange:         0,
		ActivityDealWon:             0,
		ActivityDealLost:            0,
		ActivityReactivation:        15,
		ActivityTemperatureAdjusted: 0,
	}
	assert.Len(t, want, len(UserActivityTypes)+len(SystemActivityTypes))
	for typ, impact := range want {
		assert.Equal(t, impact, typ.TemperatureImpact(), string(typ))
		assert.True(t, typ.Valid(), string(typ))
	}
}

func TestParseActivityType_RejectsSystemTypes(t *testing.T) {
	for _, typ := range SystemActivityTypes {
		_, err := ParseActivityType(string(typ))
		assert.Error(t, err, string(typ))
	}
	got, err := ParseActivityType("SITE_VISIT")
	assert.NoError(t, err)
	assert.Equal(t, ActivitySiteVisit, got)

	_, err = ParseActivityType("carrier_pigeon")
	assert.Error(t, err)
}

func TestLogActivityRequest_Impact(t *testing.T) {
	r := LogActivityRequest{Type: ActivitySiteVisit, Title: "Walked the roof"}
	assert.Equal(t, 30, r.Impact())

	zero := 0
	r.TemperatureImpact = &zero
	assert.Equal(t, 0, r.Impact())

	huge := math.MaxInt
	r.TemperatureImpact = &huge
	assert.Equal(t, MaxImpact, r.Impact())

	assert.NoError(t, r.Validate())
	r.Title = " "
	assert.Error(t, r.Validate())
}
