package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/boddenberg/coatings-pipeline-go/internal/handler"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/cache"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/memory"
	"github.com/boddenberg/coatings-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/coatings-pipeline-go/internal/service"

	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T, authRequired bool) http.Handler {
	t.Helper()
	store := memory.New()
	metrics := observability.NewMetrics()
	customerCache := cache.New[*domain.Customer](time.Minute)
	t.Cleanup(customerCache.Close)

	svc := service.NewPipeline(store, store, customerCache, metrics, zap.NewNop(), service.Options{Backend: "memory"})
	return handler.NewRouter(svc, service.NewTokenVerifier(testSecret), metrics, zap.NewNop(), handler.RouterOptions{
		AuthRequired:       authRequired,
		CORSAllowedOrigins: []string{"https://crm.example.com"},
	})
}

func do(t *testing.T, router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeLead(t *testing.T, rec *httptest.ResponseRecorder) domain.Lead {
	t.Helper()
	var lead domain.Lead
	if err := json.NewDecoder(rec.Body).Decode(&lead); err != nil {
		t.Fatalf("decode lead: %v (body=%s)", err, rec.Body.String())
	}
	return lead
}

func createLead(t *testing.T, router http.Handler, body string) domain.Lead {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/v1/leads", body, map[string]string{"X-Sales-Rep": "rep-ana"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeLead(t, rec)
}

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(nil, nil, observability.NewMetrics(), zap.NewNop(), handler.RouterOptions{})

	rec := do(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := newTestRouter(t, false)

	rec := do(t, router, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := newTestRouter(t, false)
	createLead(t, router, `{"project_name":"Depot","deal_type":"apply"}`)

	rec := do(t, router, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pipeline_leads_created_total") {
		t.Errorf("expected pipeline metrics in exposition")
	}

	rec = do(t, router, http.MethodGet, "/v1/metrics/pipeline", "", nil)
	var snap domain.PipelineMetrics
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.LeadsCreated != 1 {
		t.Errorf("expected 1 lead created, got %d", snap.LeadsCreated)
	}
}

func TestCreateLead(t *testing.T) {
	router := newTestRouter(t, false)

	lead := createLead(t, router, `{"project_name":"Harbour Warehouse","deal_type":"supply","estimated_value":"15000.00"}`)
	if lead.Probability != 12 || lead.Stage != domain.StageLead {
		t.Errorf("unexpected lead %+v", lead)
	}
	if lead.CreatedBy != "rep-ana" {
		t.Errorf("expected actor from X-Sales-Rep, got %s", lead.CreatedBy)
	}

	rec := do(t, router, http.MethodPost, "/v1/leads", `{"deal_type":"supply"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing project name, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/v1/leads", `{"project_name":"x","deal_type":"supply","colour":"red"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestLeadLifecycle(t *testing.T) {
	router := newTestRouter(t, false)
	lead := createLead(t, router, `{"project_name":"Warehouse","deal_type":"apply"}`)
	base := "/v1/leads/" + lead.ID

	rec := do(t, router, http.MethodPost, base+"/activities", `{"type":"site_visit","title":"Walked the site"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("log activity: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var logged struct {
		Activity domain.Activity `json:"activity"`
		Lead     domain.Lead     `json:"lead"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&logged); err != nil {
		t.Fatal(err)
	}
	if logged.Lead.Temperature != 30 || logged.Activity.TemperatureImpact != 30 {
		t.Errorf("expected +30, got lead=%d activity=%d", logged.Lead.Temperature, logged.Activity.TemperatureImpact)
	}

	rec = do(t, router, http.MethodPost, base+"/stage", `{"stage":"negotiation"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("move stage: expected 200, got %d", rec.Code)
	}
	if moved := decodeLead(t, rec); moved.Temperature != 40 {
		t.Errorf("expected forward bonus to 40, got %d", moved.Temperature)
	}

	rec = do(t, router, http.MethodPost, base+"/stage", `{"stage":"won"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("move to won: expected 422, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, base+"/lost", `{"competitor":"Acme"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("lost without reason: expected 400, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, base+"/lost", `{"reason":"price"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lost: expected 200, got %d", rec.Code)
	}
	if lost := decodeLead(t, rec); lost.Temperature != -20 || lost.Probability != 0 {
		t.Errorf("expected -20/0, got %d/%d", lost.Temperature, lost.Probability)
	}

	rec = do(t, router, http.MethodPost, base+"/reactivate", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reactivate: expected 200, got %d", rec.Code)
	}
	if back := decodeLead(t, rec); back.Stage != domain.StageQualified || back.Probability != 30 {
		t.Errorf("expected qualified/30, got %s/%d", back.Stage, back.Probability)
	}

	rec = do(t, router, http.MethodPost, base+"/reactivate", "", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("second reactivate: expected 422, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, base+"/won", `{"final_value":"9999.99"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("won: expected 200, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, base+"/activities", "", nil)
	var acts struct {
		Data  []domain.Activity `json:"data"`
		Total int               `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&acts); err != nil {
		t.Fatal(err)
	}
	// lead_created, site_visit, stage_change, deal_lost, reactivation, deal_won
	if acts.Total != 6 || acts.Data[0].Type != domain.ActivityDealWon {
		t.Errorf("unexpected activity log: total=%d", acts.Total)
	}
}

func TestTemperatureAndUpdate(t *testing.T) {
	router := newTestRouter(t, false)
	lead := createLead(t, router, `{"project_name":"Silo","deal_type":"apply"}`)
	base := "/v1/leads/" + lead.ID

	rec := do(t, router, http.MethodPost, base+"/temperature", `{"adjustment":60}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if hot := decodeLead(t, rec); hot.TemperatureStatus != domain.StatusHot {
		t.Errorf("expected hot, got %s", hot.TemperatureStatus)
	}

	rec = do(t, router, http.MethodPost, base+"/temperature", `{"adjustment":5,"activity_type":"note"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for both fields, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPatch, base, `{"location":"Pier 4"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", rec.Code)
	}
	if updated := decodeLead(t, rec); updated.Location != "Pier 4" || updated.Temperature != 60 {
		t.Errorf("unexpected patch result %+v", updated)
	}

	rec = do(t, router, http.MethodGet, base, "", nil)
	var view domain.LeadView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Location != "Pier 4" || view.DaysInStage != 0 {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestListLeads(t *testing.T) {
	router := newTestRouter(t, false)
	createLead(t, router, `{"project_name":"A","deal_type":"supply","source":"Referral"}`)
	createLead(t, router, `{"project_name":"B","deal_type":"apply"}`)
	createLead(t, router, `{"project_name":"C","deal_type":"supply"}`)

	rec := do(t, router, http.MethodGet, "/v1/leads?deal_type=supply&page_size=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp domain.ListResponse[domain.LeadView]
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Data) != 1 || !resp.HasMore {
		t.Errorf("unexpected page %+v", resp)
	}

	rec = do(t, router, http.MethodGet, "/v1/leads?source=referral", "", nil)
	resp = domain.ListResponse[domain.LeadView]{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Data[0].ProjectName != "A" {
		t.Errorf("expected case-insensitive source match, got %+v", resp.Data)
	}

	rec = do(t, router, http.MethodGet, "/v1/leads?stage=archived", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown stage, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/v1/leads/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var stats domain.PipelineStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalLeads != 3 || stats.ByDealType[domain.DealTypeSupply] != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMarkWon_EmptyBodyFallsBackToEstimate(t *testing.T) {
	router := newTestRouter(t, false)
	lead := createLead(t, router, `{"project_name":"Mall","deal_type":"apply","estimated_value":"15000.00"}`)

	rec := do(t, router, http.MethodPost, "/v1/leads/"+lead.ID+"/won", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty body, got %d: %s", rec.Code, rec.Body.String())
	}
	won := decodeLead(t, rec)
	if won.Stage != domain.StageWon || won.FinalValue == nil || won.FinalValue.StringFixed(2) != "15000.00" {
		t.Errorf("expected won at the estimate, got %+v", won)
	}

	rec = do(t, router, http.MethodPost, "/v1/leads/"+lead.ID+"/won", `{"final_value":`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestListLeads_HugePage(t *testing.T) {
	router := newTestRouter(t, false)
	createLead(t, router, `{"project_name":"A","deal_type":"supply"}`)

	rec := do(t, router, http.MethodGet, "/v1/leads?page=9223372036854775807", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp domain.ListResponse[domain.LeadView]
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Data) != 0 {
		t.Errorf("expected empty page, got %+v", resp)
	}
}

func TestGetLead_NotFound(t *testing.T) {
	router := newTestRouter(t, false)

	rec := do(t, router, http.MethodGet, "/v1/leads/does-not-exist", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodPost, "/v1/leads/does-not-exist/activities", `{"type":"note","title":"x"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for activity on missing lead, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t, true)
	body := `{"project_name":"Depot","deal_type":"apply"}`

	rec := do(t, router, http.MethodPost, "/v1/leads", body, map[string]string{"X-Sales-Rep": "rep-ana"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/v1/leads", body, map[string]string{"Authorization": "Bearer nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad token, got %d", rec.Code)
	}

	token, err := service.NewTokenVerifier(testSecret).SignAccessToken("rep-bruno", "Bruno", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec = do(t, router, http.MethodPost, "/v1/leads", body, map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d", rec.Code)
	}
	if lead := decodeLead(t, rec); lead.CreatedBy != "rep-bruno" {
		t.Errorf("expected actor from token subject, got %s", lead.CreatedBy)
	}

	rec = do(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("probes must stay public, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, false)

	rec := do(t, router, http.MethodOptions, "/v1/leads", "", map[string]string{
		"Origin":                        "https://crm.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://crm.example.com" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	router := newTestRouter(t, false)

	rec := do(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Errorf("expected X-Request-Id response header")
	}
}
