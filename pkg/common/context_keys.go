package common

type contextKey string

const (
	TraceIdKey             contextKey = "trace_id"
	ClientKeyContextKey    contextKey = "client_key"
	AdminSubjectContextKey contextKey = "admin_subject"
	LatencyContextKey      contextKey = "__execution_time"
)
