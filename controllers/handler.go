package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"civicsync-fe/api"
	"civicsync-fe/cache"
	"civicsync-fe/config"
	"civicsync-fe/middlewares"
	"civicsync-fe/models"
	"civicsync-fe/mutations"
	"civicsync-fe/paginator"
	"civicsync-fe/session"
	"civicsync-fe/views"
)

// SessionStore persists signed-in sessions.
type SessionStore interface {
	Save(ctx context.Context, rec session.Record, ttl time.Duration) error
	Lookup(ctx context.Context, id string) (session.Record, error)
	Revoke(ctx context.Context, id string) error
}

// Handler serves the web client's JSON endpoints.
type Handler struct {
	API      *api.Client
	Identity *api.Identity
	Images   *api.ImageHost
	Checkout *api.Checkout
	Sessions SessionStore
	Registry *session.Registry
	Config   *config.Config
}

func New(cfg *config.Config, sessions SessionStore, registry *session.Registry) *Handler {
	registerValidations()
	return &Handler{
		API:      api.NewClient(cfg.APIBaseURL, cfg.FetchTimeout),
		Identity: api.NewIdentity(cfg.IdentityURL, cfg.FetchTimeout),
		Images:   api.NewImageHost(cfg.ImageHostURL, cfg.ImageHostKey, cfg.FetchTimeout),
		Checkout: api.NewCheckout(cfg.CheckoutURL, cfg.FetchTimeout),
		Sessions: sessions,
		Registry: registry,
		Config:   cfg,
	}
}

func (h *Handler) sessionOptions() middlewares.SessionOptions {
	return middlewares.SessionOptions{
		Secret:       h.Config.JWTSecret,
		TTL:          h.Config.SessionTTL,
		SecureCookie: h.Config.Env == "production",
	}
}

// Profile loads the signed-in user's account through the session cache.
func (h *Handler) Profile(c *gin.Context) (models.User, error) {
	cur := middlewares.CurrentSession(c)
	if !cur.SignedIn() {
		return models.User{}, mutations.ErrNotAuthenticated
	}
	st := h.profile(c, cur)
	if st.IsError {
		return models.User{}, st.Err
	}
	if len(st.Data) == 0 {
		return models.User{}, cache.ErrDiscarded
	}
	return st.Data[0], nil
}

// viewer is who the guards evaluate. Visitors get the zero Viewer; a signed-in
// user the API does not know yet is treated as a new citizen.
func (h *Handler) viewer(c *gin.Context) (mutations.Viewer, error) {
	cur := middlewares.CurrentSession(c)
	if !cur.SignedIn() {
		return mutations.Viewer{}, nil
	}
	user, err := h.Profile(c)
	if api.IsNotFound(err) {
		return mutations.Viewer{Email: cur.Email(), Name: cur.Record.DisplayName, Role: models.RoleCitizen}, nil
	}
	if err != nil {
		return mutations.Viewer{}, err
	}
	return mutations.ViewerOf(user), nil
}

// validationError is a form that failed its constraints before any network call.
type validationError struct {
	Fields map[string]string
}

func (e *validationError) Error() string { return "validation failed" }

func invalid(field, msg string) error {
	return &validationError{Fields: map[string]string{field: msg}}
}

// respondError maps err onto a status code and a JSON body.
func respondError(c *gin.Context, err error) {
	var verr *validationError
	var apiErr *api.Error

	if r, ok := mutations.AsRejection(err); ok {
		c.JSON(rejectionStatus(r.Kind), gin.H{"error": r.Reason})
		return
	}

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please fix the highlighted fields", "fields": verr.Fields})
	case errors.Is(err, views.ErrInvalidCriteria),
		errors.Is(err, paginator.ErrPageSize),
		errors.Is(err, models.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, mutations.ErrInFlight), errors.Is(err, mutations.ErrTicketSettled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, mutations.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cache.ErrDiscarded):
		c.Abort()
	case api.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.As(err, &apiErr),
		errors.Is(err, api.ErrNotAcknowledged),
		errors.Is(err, api.ErrNoImageURL),
		errors.Is(err, api.ErrNoRedirect):
		c.JSON(http.StatusBadGateway, gin.H{"error": "The server could not complete the request", "detail": err.Error()})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("unhandled error")
		sentry.CaptureException(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}

func rejectionStatus(k mutations.Kind) int {
	switch k {
	case mutations.KindUnauthenticated:
		return http.StatusUnauthorized
	case mutations.KindForbidden:
		return http.StatusForbidden
	case mutations.KindConflict:
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

// respondTicket renders the outcome of a submitted or resolved mutation.
func respondTicket(c *gin.Context, ticket mutations.Ticket, err error) {
	if err != nil {
		if ticket.ID != "" && !errors.Is(err, mutations.ErrInFlight) && !errors.Is(err, mutations.ErrTicketSettled) {
			if r, ok := mutations.AsRejection(err); ok {
				c.JSON(rejectionStatus(r.Kind), gin.H{"error": r.Reason, "ticket": ticket})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "The change could not be saved", "detail": err.Error(), "ticket": ticket})
			return
		}
		respondError(c, err)
		return
	}
	switch ticket.Phase {
	case mutations.Confirming:
		c.JSON(http.StatusAccepted, gin.H{"ticket": ticket})
	default:
		c.JSON(http.StatusOK, gin.H{"ticket": ticket})
	}
}
