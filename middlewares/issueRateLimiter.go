package middlewares

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ReportThrottle caps issue submissions per user per day. Counters live in
// Redis under "<prefix>:<email>" and expire 24h after the first submission.
func ReportThrottle(client *redis.Client, prefix string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := CurrentSession(c).Email()
		if email == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Please sign in to continue."})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		userKey := prefix + ":" + email

		count, err := client.Incr(ctx, userKey).Result()
		if err != nil {
			log.WithError(err).Error("redis error incrementing report count")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not check your submission limit"})
			c.Abort()
			return
		}

		// Set TTL only for the first increment
		if count == 1 {
			if err := client.Expire(ctx, userKey, 24*time.Hour).Err(); err != nil {
				log.WithError(err).Error("redis error setting report counter TTL")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not check your submission limit"})
				c.Abort()
				return
			}
		}

		if count > int64(limit) {
			retryAfter, _ := client.TTL(ctx, userKey).Result()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "You have reached today's report limit",
				"retry_after": retryAfter.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
