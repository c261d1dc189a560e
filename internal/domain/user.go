package domain

// UserContext is the authenticated caller injected into request handlers.
// Identity issuance happens outside this service; only the subject is trusted.
type UserContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}
