package entities

import (
	"sort"
	"time"
)

type ComponentHealth struct {
	Name      string `json:"name"`
	IsHealthy bool   `json:"isHealthy"`
	Status    string `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

// HealthSnapshot is rebuilt from scratch on every check.
type HealthSnapshot struct {
	IsHealthy  bool                       `json:"isHealthy"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checkedAt"`
}

// FailedComponents returns the keys of unhealthy components in sorted order.
func (h HealthSnapshot) FailedComponents() []string {
	var failed []string
	for key, c := range h.Components {
		if !c.IsHealthy {
			failed = append(failed, key)
		}
	}
	sort.Strings(failed)
	return failed
}
