package common

const (
	ForwardedForHeader = "X-Forwarded-For"
	RequestIDHeader    = "X-Request-Id"
	RetryAfterHeader   = "Retry-After"

	ServerTypeAPI   = "api"
	ServerTypeAdmin = "admin"
)
