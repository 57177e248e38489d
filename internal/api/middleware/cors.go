package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/contributor-info/rollout/internal/config"
	"github.com/gin-gonic/gin"
)

// CORS restricts browser access to the configured origins, typically the
// contributor.info dashboard. Production refuses to start without an
// explicit origin list; elsewhere an empty list allows everything so local
// dashboards work without configuration.
func CORS(allowedOrigins []string, env config.Environment) gin.HandlerFunc {
	if len(allowedOrigins) == 0 && env == config.EnvProduction {
		panic("CORS_ORIGINS must be set in production; refusing to start with open CORS policy")
	}
	if len(allowedOrigins) == 0 {
		log.Println("WARNING: CORS_ORIGINS is empty, all origins are allowed (not suitable for production)")
	}

	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.ToLower(o)] = struct{}{}
	}

	allowed := func(origin string) bool {
		if origin == "" {
			return false
		}
		if len(origins) == 0 {
			return true
		}
		_, ok := origins[strings.ToLower(origin)]
		return ok
	}

	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); allowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
