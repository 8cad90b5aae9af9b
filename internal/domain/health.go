package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// PipelineMetrics is returned by GET /v1/metrics/pipeline.
type PipelineMetrics struct {
	LeadsCreated     int64            `json:"leadsCreated"`
	ActivitiesLogged int64            `json:"activitiesLogged"`
	StageTransitions int64            `json:"stageTransitions"`
	DealsWon         int64            `json:"dealsWon"`
	DealsLost        int64            `json:"dealsLost"`
	Reactivations    int64            `json:"reactivations"`
	VersionConflicts int64            `json:"versionConflicts"`
	CacheHitRate     float64          `json:"cacheHitRate"`
	ActivitiesByType map[string]int64 `json:"activitiesByType"`
	StoreBackend     string           `json:"storeBackend"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// NewListResponse slices items for the requested page. Page is 1-based.
func NewListResponse[T any](items []T, page, pageSize int) ListResponse[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = len(items)
	}
	total := len(items)
	start := total
	if pageSize > 0 && page-1 <= total/pageSize {
		start = min((page-1)*pageSize, total)
	}
	end := start + min(pageSize, total-start)
	data := items[start:end]
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{
		Data:     data,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  end < total,
	}
}
