package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Claim records which intake adapter first accepted a commandId.
type Claim struct {
	CommandID string    `json:"commandId"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// CommandCache suppresses duplicate deliveries of the same commandId across
// intake adapters for a limited time. A zero TTL disables it.
type CommandCache struct {
	items *gocache.Cache
	ttl   time.Duration
}

func NewCommandCache(ttl time.Duration) *CommandCache {
	cleanup := ttl
	if cleanup <= 0 || cleanup > time.Minute {
		cleanup = time.Minute
	}
	return &CommandCache{items: gocache.New(ttl, cleanup), ttl: ttl}
}

func (c *CommandCache) Enabled() bool { return c.ttl > 0 }

// Claim atomically reserves commandID. It returns false if the id is already
// claimed. Commands without an id are never deduplicated.
func (c *CommandCache) Claim(commandID, source string) bool {
	if !c.Enabled() || commandID == "" {
		return true
	}
	claim := Claim{CommandID: commandID, Source: source, Status: StatusProcessing, ClaimedAt: time.Now().UTC()}
	return c.items.Add(commandID, claim, c.ttl) == nil
}

// Release drops a claim so a later redelivery can run, e.g. after the command
// was refused admission.
func (c *CommandCache) Release(commandID string) {
	if commandID == "" {
		return
	}
	c.items.Delete(commandID)
}

// Complete marks the claim terminal and restarts its TTL.
func (c *CommandCache) Complete(commandID string, success bool) {
	if !c.Enabled() || commandID == "" {
		return
	}
	claim, _ := c.Lookup(commandID)
	claim.CommandID = commandID
	claim.Status = StatusFailed
	if success {
		claim.Status = StatusCompleted
	}
	c.items.Set(commandID, claim, c.ttl)
}

func (c *CommandCache) Lookup(commandID string) (Claim, bool) {
	v, ok := c.items.Get(commandID)
	if !ok {
		return Claim{}, false
	}
	return v.(Claim), true
}

// GetCacheStats returns statistics about the current cache
func (c *CommandCache) GetCacheStats() map[string]interface{} {
	return map[string]interface{}{
		"enabled": c.Enabled(),
		"entries": c.items.ItemCount(),
		"ttl":     c.ttl.String(),
	}
}

// ClearCache forgets every claim.
func (c *CommandCache) ClearCache() {
	c.items.Flush()
}
