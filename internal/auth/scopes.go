package auth

// Scopes understood by the healthtrack API.
const (
	ScopeHealthRead  = "health:read"
	ScopeHealthWrite = "health:write"
	// ScopeCaregiver lets the bearer act on patients other than the token subject.
	ScopeCaregiver = "health:caregiver"
)
