package auth

// Known OAuth scopes used by the progress service.
const (
	ScopeProgressRead = "progress:read"
)
