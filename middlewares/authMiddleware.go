package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"civicsync-fe/api"
	"civicsync-fe/models"
	"civicsync-fe/session"
	authUtils "civicsync-fe/utils"
)

const (
	SessionCookie = "civicsync_session"
	sessionKey    = "session"
)

// SessionLookup finds the record of a signed-in session.
type SessionLookup interface {
	Lookup(ctx context.Context, id string) (session.Record, error)
}

// SessionOptions configures SessionMiddleware.
type SessionOptions struct {
	Secret       string
	TTL          time.Duration
	SecureCookie bool
}

// SessionMiddleware attaches a session to every request. Browsers without a
// valid session token get a fresh anonymous session.
func SessionMiddleware(store SessionLookup, registry *session.Registry, opts SessionOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := ""
		if tokenString := sessionToken(c); tokenString != "" {
			parsed, err := authUtils.ParseSessionToken(tokenString, opts.Secret)
			if err != nil {
				log.WithError(err).Debug("discarding session token")
			}
			sid = parsed
		}
		if sid == "" {
			sid = uuid.NewString()
			if err := IssueSessionCookie(c, sid, opts); err != nil {
				log.WithError(err).Error("could not issue session token")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Session could not be started"})
				c.Abort()
				return
			}
		}

		cur := &session.Current{ID: sid, Workspace: registry.Get(sid)}
		rec, err := store.Lookup(c.Request.Context(), sid)
		switch {
		case err == nil:
			cur.Record = &rec
			c.Request = c.Request.WithContext(api.WithToken(c.Request.Context(), rec.UpstreamToken))
		case !errors.Is(err, session.ErrNotFound):
			log.WithError(err).Warn("session lookup failed; continuing as visitor")
		}

		c.Set(sessionKey, cur)
		c.Next()
	}
}

// IssueSessionCookie signs a token for sid and sets it as the session cookie.
func IssueSessionCookie(c *gin.Context, sid string, opts SessionOptions) error {
	token, err := authUtils.GenerateSessionToken(sid, opts.Secret, opts.TTL)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(opts.TTL.Seconds()), "/", "", opts.SecureCookie, true)
	return nil
}

func sessionToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	token, _ := c.Cookie(SessionCookie)
	return token
}

// CurrentSession returns the session SessionMiddleware attached.
func CurrentSession(c *gin.Context) *session.Current {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	cur, _ := v.(*session.Current)
	return cur
}

// RequireAuth rejects visitors.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentSession(c).SignedIn() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Please sign in to continue."})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ProfileResolver loads the signed-in user's profile.
type ProfileResolver func(c *gin.Context) (models.User, error)

// RequireRole admits signed-in users whose profile has one of roles.
func RequireRole(resolve ProfileResolver, roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentSession(c).SignedIn() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Please sign in to continue."})
			c.Abort()
			return
		}
		user, err := resolve(c)
		if err != nil {
			log.WithError(err).Warn("profile lookup failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "Could not load your profile"})
			c.Abort()
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this page"})
		c.Abort()
	}
}
