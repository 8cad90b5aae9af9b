package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActivityType identifies what happened on a lead.
type ActivityType string

// Sales activity types, logged by reps.
const (
	ActivityPhoneCall          ActivityType = "phone_call"
	ActivityEmailSent          ActivityType = "email_sent"
	ActivityWhatsAppMessage    ActivityType = "whatsapp_message"
	ActivityMeetingScheduled   ActivityType = "meeting_scheduled"
	ActivityMeetingCompleted   ActivityType = "meeting_completed"
	ActivitySiteVisit          ActivityType = "site_visit"
	ActivitySampleSent         ActivityType = "sample_sent"
	ActivityQuoteSent          ActivityType = "quote_sent"
	ActivityQuoteRevised       ActivityType = "quote_revised"
	ActivityFollowUp           ActivityType = "follow_up"
	ActivityDecisionMakerMet   ActivityType = "decision_maker_met"
	ActivityNoResponse         ActivityType = "no_response"
	ActivityObjectionRaised    ActivityType = "objection_raised"
	ActivityBudgetIssue        ActivityType = "budget_issue"
	ActivityCompetitorInvolved ActivityType = "competitor_involved"
	ActivityProjectDelayed     ActivityType = "project_delayed"
	ActivityNote               ActivityType = "note"
)

// System activity types, written only by the engine.
const (
	ActivityLeadCreated         ActivityType = "lead_created"
	ActivityStageChange         ActivityType = "stage_change"
	ActivityDealWon             ActivityType = "deal_won"
	ActivityDealLost            ActivityType = "deal_lost"
	ActivityReactivation        ActivityType = "reactivation"
	ActivityTemperatureAdjusted ActivityType = "temperature_adjusted"
)

// ReactivationImpact is recorded on the reactivation activity for audit.
// The temperature itself is set to ReactivatedTemperature.
const ReactivationImpact = 15

// UserActivityTypes are the types a caller may log directly.
var UserActivityTypes = []ActivityType{
	ActivityPhoneCall, ActivityEmailSent, ActivityWhatsAppMessage,
	ActivityMeetingScheduled, ActivityMeetingCompleted, ActivitySiteVisit,
	ActivitySampleSent, ActivityQuoteSent, ActivityQuoteRevised,
	ActivityFollowUp, ActivityDecisionMakerMet,
	ActivityNoResponse, ActivityObjectionRaised, ActivityBudgetIssue,
	ActivityCompetitorInvolved, ActivityProjectDelayed, ActivityNote,
}

// SystemActivityTypes are engine-generated.
var SystemActivityTypes = []ActivityType{
	ActivityLeadCreated, ActivityStageChange, ActivityDealWon,
	ActivityDealLost, ActivityReactivation, ActivityTemperatureAdjusted,
}

// TemperatureImpact is the fixed impact of the activity type.
// System types that carry a computed delta (stage_change, temperature_adjusted) return 0 here.
func (a ActivityType) TemperatureImpact() int {
	switch a {
	case ActivityPhoneCall:
		return 10
	case ActivityEmailSent, ActivityWhatsAppMessage, ActivityFollowUp:
		return 5
	case ActivityMeetingScheduled, ActivityDecisionMakerMet:
		return 20
	case ActivityMeetingCompleted, ActivitySampleSent:
		return 15
	case ActivitySiteVisit:
		return 30
	case ActivityQuoteSent:
		return 25
	case ActivityQuoteRevised:
		return 10
	case ActivityNoResponse:
		return -5
	case ActivityObjectionRaised, ActivityCompetitorInvolved, ActivityProjectDelayed:
		return -10
	case ActivityBudgetIssue:
		return -15
	case ActivityReactivation:
		return ReactivationImpact
	case ActivityNote, ActivityLeadCreated, ActivityStageChange, ActivityDealWon,
		ActivityDealLost, ActivityTemperatureAdjusted:
		return 0
	default:
		return 0
	}
}

// IsSystem reports whether the type is reserved for the engine.
func (a ActivityType) IsSystem() bool {
	switch a {
	case ActivityLeadCreated, ActivityStageChange, ActivityDealWon,
		ActivityDealLost, ActivityReactivation, ActivityTemperatureAdjusted:
		return true
	}
	return false
}

// Valid reports whether a is a known type, user or system.
func (a ActivityType) Valid() bool {
	if a.IsSystem() {
		return true
	}
	for _, t := range UserActivityTypes {
		if t == a {
			return true
		}
	}
	return false
}

// ParseActivityType validates a raw type a caller wants to log.
func ParseActivityType(raw string) (ActivityType, error) {
	a := ActivityType(strings.ToLower(strings.TrimSpace(raw)))
	if !a.Valid() {
		return "", &ErrValidation{Field: "type", Message: fmt.Sprintf("unknown activity type '%s'", raw)}
	}
	if a.IsSystem() {
		return "", &ErrValidation{Field: "type", Message: fmt.Sprintf("'%s' is reserved for system events", raw)}
	}
	return a, nil
}

// Activity is an immutable log entry on a lead.
type Activity struct {
	ID                string       `json:"id"`
	LeadID            string       `json:"lead_id"`
	Type              ActivityType `json:"type"`
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	Outcome           string       `json:"outcome,omitempty"`
	NextAction        string       `json:"next_action,omitempty"`
	NextActionDate    *time.Time   `json:"next_action_date,omitempty"`
	TemperatureImpact int          `json:"temperature_impact"`
	CreatedBy         string       `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
}

// LogActivityRequest is the payload to log a sales activity.
// When TemperatureImpact is nil the type's fixed impact is used.
type LogActivityRequest struct {
	Type              ActivityType `json:"type"`
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	Outcome           string       `json:"outcome,omitempty"`
	NextAction        string       `json:"next_action,omitempty"`
	NextActionDate    *time.Time   `json:"next_action_date,omitempty"`
	TemperatureImpact *int         `json:"temperature_impact,omitempty"`
}

// Impact resolves the impact to apply. An explicit impact is saturated.
func (r *LogActivityRequest) Impact() int {
	if r.TemperatureImpact != nil {
		return ClampImpact(*r.TemperatureImpact)
	}
	return r.Type.TemperatureImpact()
}

// Validate checks the type and title.
func (r *LogActivityRequest) Validate() error {
	if _, err := ParseActivityType(string(r.Type)); err != nil {
		return err
	}
	if strings.TrimSpace(r.Title) == "" {
		return &ErrValidation{Field: "title", Message: "required"}
	}
	return nil
}
