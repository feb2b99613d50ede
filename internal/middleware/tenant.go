package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TenantMiddleware extracts the tenant (restaurant chain) ID from headers
// SECURITY: No default tenant fallback - requests without tenant context are rejected
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get tenant ID from X-Tenant-ID header (required)
		tenantID := c.GetHeader("X-Tenant-ID")

		// If not in header, try to get from context (set by auth middleware)
		if tenantID == "" {
			if tid, exists := c.Get("tenant_id"); exists {
				tenantID = tid.(string)
			}
		}

		// SECURITY: No default fallback - fail closed
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "TENANT_REQUIRED",
					"message": "Tenant ID is required. Include X-Tenant-ID header.",
				},
			})
			c.Abort()
			return
		}

		// Set tenant ID in context for handlers to use
		c.Set("tenant_id", tenantID)
		c.Next()
	}
}

// StoreMiddleware extracts the store (restaurant location) ID from headers.
// Optional - store scoping can also come from query parameters.
func StoreMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID := c.GetHeader("X-Store-ID")

		if storeID == "" {
			if sid, exists := c.Get("store_id"); exists {
				storeID = sid.(string)
			}
		}

		if storeID != "" {
			c.Set("store_id", storeID)
		}
		c.Next()
	}
}

// GetTenantID retrieves the tenant ID from gin context
func GetTenantID(c *gin.Context) string {
	return c.GetString("tenant_id")
}

// GetStoreID retrieves the store ID from gin context
// Returns empty string if not set (tenant-wide request)
func GetStoreID(c *gin.Context) string {
	return c.GetString("store_id")
}
