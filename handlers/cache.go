package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kiosk-gateway/cache"
)

// CacheHandler exposes the commandId idempotency cache.
type CacheHandler struct {
	cache *cache.CommandCache
}

func NewCacheHandler(c *cache.CommandCache) *CacheHandler {
	return &CacheHandler{cache: c}
}

// GetCommand GET /cache/commands/:id
func (h *CacheHandler) GetCommand(c *gin.Context) {
	claim, ok := h.cache.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "claim": claim})
}

func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"stats":  h.cache.GetCacheStats(),
	})
}

func (h *CacheHandler) ClearCache(c *gin.Context) {
	h.cache.ClearCache()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
