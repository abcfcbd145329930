package utils

type ContextKey string

const (
	UserKey        ContextKey = "user"
	PermissionsKey ContextKey = "permissions"

	// UserIDKey is the JWT claim carrying the subject's user id.
	UserIDKey = "user_id"
)
