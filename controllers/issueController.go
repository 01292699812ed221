package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync-fe/api"
	"civicsync-fe/cache"
	"civicsync-fe/middlewares"
	"civicsync-fe/models"
	"civicsync-fe/mutations"
	"civicsync-fe/session"
	"civicsync-fe/views"
)

// issueRow is an issue as a citizen sees it, with the actions offered on it.
type issueRow struct {
	models.Issue
	Busy      bool                 `json:"busy"`
	CanUpvote mutations.Affordance `json:"canUpvote"`
	CanEdit   mutations.Affordance `json:"canEdit"`
	CanDelete mutations.Affordance `json:"canDelete"`
	CanBoost  mutations.Affordance `json:"canBoost"`
}

func issueEntity(id primitive.ObjectID) string { return "issue/" + id.Hex() }

func citizenRow(ws *session.Workspace, v mutations.Viewer) func(models.Issue) issueRow {
	return func(issue models.Issue) issueRow {
		return issueRow{
			Issue:     issue,
			Busy:      ws.Coordinator.Busy(issueEntity(issue.ID)),
			CanUpvote: mutations.Allow(mutations.CanUpvote(v, issue)),
			CanEdit:   mutations.Allow(mutations.CanEdit(v, issue)),
			CanDelete: mutations.Allow(mutations.CanDelete(v, issue)),
			CanBoost:  mutations.Allow(mutations.CanBoost(v, issue)),
		}
	}
}

// ListIssues is the public issue board.
func (h *Handler) ListIssues(c *gin.Context) {
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ws := middlewares.CurrentSession(c).Workspace
	renderList(c, publicIssuesView, views.Issues, h.allIssues(c), citizenRow(ws, v))
}

// MyIssues lists the signed-in user's own reports.
func (h *Handler) MyIssues(c *gin.Context) {
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ws := middlewares.CurrentSession(c).Workspace
	renderList(c, myIssuesView, views.Issues, h.myIssues(c, v.Email), citizenRow(ws, v))
}

func (h *Handler) GetIssue(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	issue, err := h.issue(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, citizenRow(middlewares.CurrentSession(c).Workspace, v)(issue))
}

// LatestResolved feeds the home page.
func (h *Handler) LatestResolved(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "6"))
	if err != nil || limit < 1 || limit > 24 {
		limit = 6
	}
	st := h.allIssues(c)
	if st.IsError && len(st.Data) == 0 {
		respondError(c, st.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": views.LatestResolved(st.Data, limit), "loading": st.IsLoading})
}

type reportInput struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Description string   `json:"description" binding:"required,min=20,max=1000"`
	Category    string   `json:"category" binding:"required,category"`
	Location    string   `json:"location" binding:"required,max=200"`
	Images      []string `json:"images" binding:"required,min=1,max=5,dive,url"`
}

// ReportIssue submits a new issue for the signed-in user.
func (h *Handler) ReportIssue(c *gin.Context) {
	var input reportInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanReport(v, h.Config.MaxFreeIssues); err != nil {
		respondError(c, err)
		return
	}

	var ack api.Ack
	issue := api.NewIssue{
		Title:       input.Title,
		Description: input.Description,
		Category:    models.ParseIssueCategory(input.Category),
		Location:    input.Location,
		Images:      input.Images,
		Reporter:    models.Identity{Name: v.Name, Email: v.Email},
	}
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action: "reportIssue",
		Entity: "report/" + v.Email,
		Invalidate: []cache.Key{
			cache.NewKey(cache.AllIssues),
			cache.NewKey(cache.MyIssues, v.Email),
			cache.NewKey(cache.Profile, v.Email),
		},
		Write: func(ctx context.Context) (err error) {
			ack, err = h.API.CreateIssue(ctx, issue)
			return err
		},
		Result: func() any { return gin.H{"id": ack.InsertedID} },
	})
	if err == nil {
		c.JSON(http.StatusCreated, gin.H{"ticket": ticket})
		return
	}
	respondTicket(c, ticket, err)
}

type editInput struct {
	Title       *string  `json:"title" binding:"omitempty,max=200"`
	Description *string  `json:"description" binding:"omitempty,min=20,max=1000"`
	Category    *string  `json:"category" binding:"omitempty,category"`
	Location    *string  `json:"location" binding:"omitempty,max=200"`
	Images      []string `json:"images" binding:"omitempty,min=1,max=5,dive,url"`
}

// EditIssue changes the reporter's own pending issue.
func (h *Handler) EditIssue(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var input editInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	if input.Title == nil && input.Description == nil && input.Category == nil && input.Location == nil && input.Images == nil {
		respondError(c, invalid("body", "Nothing to update"))
		return
	}

	issue, err := h.issue(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanEdit(v, issue); err != nil {
		respondError(c, err)
		return
	}

	patch := api.IssuePatch{
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		Images:      input.Images,
	}
	if input.Category != nil {
		cat := models.ParseIssueCategory(*input.Category)
		patch.Category = &cat
	}
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "editIssue",
		Entity:     issueEntity(id),
		Invalidate: issueKeys(id),
		Write: func(ctx context.Context) error {
			_, err := h.API.UpdateIssue(ctx, id, patch)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

// DeleteIssue asks for confirmation, then deletes the reporter's pending issue.
func (h *Handler) DeleteIssue(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	issue, err := h.issue(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanDelete(v, issue); err != nil {
		respondError(c, err)
		return
	}

	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "deleteIssue",
		Entity:     issueEntity(id),
		Prompt:     fmt.Sprintf("Delete %q? This cannot be undone.", issue.Title),
		Guard:      h.issueGuard(ws, id, v, mutations.CanDelete),
		Invalidate: append(issueKeys(id), cache.NewKey(cache.Profile, v.Email)),
		Write: func(ctx context.Context) error {
			_, err := h.API.DeleteIssue(ctx, id)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

func (h *Handler) UpvoteIssue(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	issue, err := h.issue(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanUpvote(v, issue); err != nil {
		respondError(c, err)
		return
	}

	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "upvoteIssue",
		Entity:     issueEntity(id),
		Invalidate: issueKeys(id),
		Write: func(ctx context.Context) error {
			_, err := h.API.UpvoteIssue(ctx, id, v.Email)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

// BoostIssue asks for confirmation, then opens a checkout session for a boost.
// The boost itself is recorded by the API once the payment completes.
func (h *Handler) BoostIssue(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	issue, err := h.issue(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanBoost(v, issue); err != nil {
		respondError(c, err)
		return
	}

	req := h.checkoutRequest(models.BoostIssue, h.Config.BoostPrice, v.Email)
	req.IssueID = id.Hex()
	ws := middlewares.CurrentSession(c).Workspace
	m := h.checkoutMutation(
		"boostIssue", issueEntity(id),
		fmt.Sprintf("Boost %q to high priority for %.0f?", issue.Title, h.Config.BoostPrice),
		req,
	)
	m.Guard = h.issueGuard(ws, id, v, mutations.CanBoost)
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), m)
	respondTicket(c, ticket, err)
}
