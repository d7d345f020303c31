package instance

import "github.com/msa-portal/portal-backend/pkg/env"

// GetID returns the process instance identifier or "local".
func GetID() string {
	if id := env.Get("PORTAL_INSTANCE_ID", ""); id != "" {
		return id
	}
	return env.Get("DYNO", "local")
}
