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
	Error       string `json:"error,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// ImportMetrics is returned by GET /v1/metrics/imports.
type ImportMetrics struct {
	RowsProcessed     int64   `json:"rowsProcessed"`
	RowsSkipped       int64   `json:"rowsSkipped"`
	OwnerRows         int64   `json:"ownerRows"`
	SkipRate          float64 `json:"skipRate"`
	ConflictsDetected int64   `json:"conflictsDetected"`
	StatementsSaved   int64   `json:"statementsSaved"`
	StatementsSent    int64   `json:"statementsSent"`
	CacheHitRate      float64 `json:"cacheHitRate"`
	Period            string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
