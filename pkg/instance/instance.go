package instance

import "github.com/angelmondragon/marketplace-payouts/pkg/env"

// GetID names the running process in logs. MARKETPLACE_INSTANCE_ID wins over
// the platform dyno name.
func GetID() string {
	return env.Get("local", "MARKETPLACE_INSTANCE_ID", "DYNO")
}
