package controllers

import (
	"context"

	"github.com/gin-gonic/gin"

	"civicsync-fe/middlewares"
	"civicsync-fe/models"
	"civicsync-fe/mutations"
	"civicsync-fe/views"
)

type assignedRow struct {
	models.Issue
	Busy       bool                 `json:"busy"`
	NextStatus models.IssueStatus   `json:"nextStatus,omitempty"`
	CanAdvance mutations.Affordance `json:"canAdvance"`
}

// AssignedIssues lists the issues assigned to the signed-in staff member.
func (h *Handler) AssignedIssues(c *gin.Context) {
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ws := middlewares.CurrentSession(c).Workspace
	renderList(c, assignedIssuesView, views.Issues, h.assignedIssues(c, v.Email), func(issue models.Issue) assignedRow {
		next, err := mutations.CanAdvance(v, issue)
		return assignedRow{
			Issue:      issue,
			Busy:       ws.Coordinator.Busy(issueEntity(issue.ID)),
			NextStatus: next,
			CanAdvance: mutations.Allow(err),
		}
	})
}

type advanceInput struct {
	Note string `json:"note" binding:"required,max=500"`
}

// AdvanceStatus moves an assigned issue to its next status with a timeline note.
func (h *Handler) AdvanceStatus(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var input advanceInput
	if err := bindJSON(c, &input); err != nil {
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
	next, err := mutations.CanAdvance(v, issue)
	if err != nil {
		respondError(c, err)
		return
	}

	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "changeStatus",
		Entity:     issueEntity(id),
		Invalidate: issueKeys(id),
		Write: func(ctx context.Context) error {
			_, err := h.API.ChangeStatus(ctx, id, next, input.Note, v.Email)
			return err
		},
		Result: func() any { return gin.H{"status": next} },
	})
	respondTicket(c, ticket, err)
}
