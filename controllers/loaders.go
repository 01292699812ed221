package controllers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync-fe/api"
	"civicsync-fe/cache"
	"civicsync-fe/middlewares"
	"civicsync-fe/models"
	"civicsync-fe/mutations"
	"civicsync-fe/session"
)

func (h *Handler) allIssues(c *gin.Context) cache.State[models.Issue] {
	ws := middlewares.CurrentSession(c).Workspace
	return cache.Query(c.Request.Context(), ws.Cache, cache.NewKey(cache.AllIssues), h.API.ListIssues)
}

func (h *Handler) myIssues(c *gin.Context, email string) cache.State[models.Issue] {
	ws := middlewares.CurrentSession(c).Workspace
	return cache.Query(c.Request.Context(), ws.Cache, cache.NewKey(cache.MyIssues, email),
		func(ctx context.Context) ([]models.Issue, error) {
			return h.API.ListIssuesByReporter(ctx, email)
		})
}

func (h *Handler) assignedIssues(c *gin.Context, email string) cache.State[models.Issue] {
	ws := middlewares.CurrentSession(c).Workspace
	return cache.Query(c.Request.Context(), ws.Cache, cache.NewKey(cache.AssignedIssues, email),
		func(ctx context.Context) ([]models.Issue, error) {
			return h.API.ListIssuesByStaff(ctx, email)
		})
}

// issue reads a single issue through the cache as a one-element collection.
func (h *Handler) issue(c *gin.Context, id primitive.ObjectID) (models.Issue, error) {
	return h.loadIssue(c.Request.Context(), middlewares.CurrentSession(c).Workspace, id)
}

func (h *Handler) loadIssue(ctx context.Context, ws *session.Workspace, id primitive.ObjectID) (models.Issue, error) {
	st := cache.Query(ctx, ws.Cache, cache.NewKey(cache.Issue, id.Hex()),
		func(ctx context.Context) ([]models.Issue, error) {
			issue, err := h.API.GetIssue(ctx, id)
			if err != nil {
				return nil, err
			}
			return []models.Issue{issue}, nil
		})
	if st.IsError {
		return models.Issue{}, st.Err
	}
	if len(st.Data) == 0 {
		return models.Issue{}, cache.ErrDiscarded
	}
	return st.Data[0], nil
}

// reloadIssue drops the cached copy and reads the issue again.
func (h *Handler) reloadIssue(ctx context.Context, ws *session.Workspace, id primitive.ObjectID) (models.Issue, error) {
	ws.Cache.Invalidate(cache.NewKey(cache.Issue, id.Hex()))
	return h.loadIssue(ctx, ws, id)
}

// reloadViewer reads v's account again. An account the API does not know
// keeps the viewer as it was.
func (h *Handler) reloadViewer(ctx context.Context, ws *session.Workspace, v mutations.Viewer) (mutations.Viewer, error) {
	if !v.Authenticated() {
		return v, nil
	}
	key := cache.NewKey(cache.Profile, v.Email)
	ws.Cache.Invalidate(key)
	st := cache.Query(ctx, ws.Cache, key, func(ctx context.Context) ([]models.User, error) {
		user, err := h.API.GetUserByEmail(ctx, v.Email)
		if err != nil {
			return nil, err
		}
		return []models.User{user}, nil
	})
	switch {
	case st.IsError && api.IsNotFound(st.Err):
		return v, nil
	case st.IsError:
		return mutations.Viewer{}, st.Err
	case len(st.Data) == 0:
		return mutations.Viewer{}, cache.ErrDiscarded
	}
	return mutations.ViewerOf(st.Data[0]), nil
}

// issueGuard re-runs rule against the current issue and account.
func (h *Handler) issueGuard(ws *session.Workspace, id primitive.ObjectID, v mutations.Viewer,
	rule func(mutations.Viewer, models.Issue) error) func(context.Context) error {
	return func(ctx context.Context) error {
		issue, err := h.reloadIssue(ctx, ws, id)
		if err != nil {
			return err
		}
		fresh, err := h.reloadViewer(ctx, ws, v)
		if err != nil {
			return err
		}
		return rule(fresh, issue)
	}
}

func (h *Handler) myPayments(c *gin.Context, email string) cache.State[models.Payment] {
	ws := middlewares.CurrentSession(c).Workspace
	return cache.Query(c.Request.Context(), ws.Cache, cache.NewKey(cache.MyPayments, email),
		func(ctx context.Context) ([]models.Payment, error) {
			return h.API.ListPaymentsByEmail(ctx, email)
		})
}

func (h *Handler) allPayments(c *gin.Context) cache.State[models.Payment] {
	ws := middlewares.CurrentSession(c).Workspace
	return cache.Query(c.Request.Context(), ws.Cache, cache.NewKey(cache.AllPayments), h.API.ListPayments)
}

func (h *Handler) allUsers(c *gin.Context) cache.State[models.User] {
	ws := middlewares.CurrentSession(c).Workspace
	return cache.Query(c.Request.Context(), ws.Cache, cache.NewKey(cache.AllUsers), h.API.ListUsers)
}

func (h *Handler) allStaff(c *gin.Context) cache.State[models.Staff] {
	ws := middlewares.CurrentSession(c).Workspace
	return cache.Query(c.Request.Context(), ws.Cache, cache.NewKey(cache.AllStaff), h.API.ListStaff)
}

func (h *Handler) profile(c *gin.Context, cur *session.Current) cache.State[models.User] {
	email := cur.Email()
	return cache.Query(c.Request.Context(), cur.Workspace.Cache, cache.NewKey(cache.Profile, email),
		func(ctx context.Context) ([]models.User, error) {
			user, err := h.API.GetUserByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			return []models.User{user}, nil
		})
}

// Keys touched by writes to issues, used for invalidation.
func issueKeys(id primitive.ObjectID) []cache.Key {
	return []cache.Key{
		cache.NewKey(cache.Issue, id.Hex()),
		cache.NewKey(cache.AllIssues),
		cache.NewKey(cache.MyIssues),
		cache.NewKey(cache.AssignedIssues),
	}
}
