package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr            string
	SessionCookie   string
	SessionTTLHours int
	// SessionsPath persists sessions across restarts when set.
	SessionsPath   string
	BasePath       string
	AllowedOrigins []string
	// Tenant scopes role changes made through the API.
	Tenant  string
	Version string
}
