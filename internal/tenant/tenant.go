// Package tenant holds the per-gym registry. Every tenant owns its own
// database; connections are opened once at startup and cached by tenant id,
// never re-resolved per request.
package tenant

import (
	"database/sql"
)

// Tenant is one provisioned gym: its identity, its database connection and
// the settings the core needs (API secret for JWT validation, civil UTC
// offset for the unenrollment cutoff).
type Tenant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DSN          string `json:"dsn"`
	APISecret    string `json:"api_secret"`
	UTCOffsetMin int    `json:"utc_offset_min"`

	DB *sql.DB `json:"-"`
}
