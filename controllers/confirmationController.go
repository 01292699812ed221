package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"civicsync-fe/middlewares"
	"civicsync-fe/mutations"
)

type confirmInput struct {
	Confirm *bool `json:"confirm" binding:"required"`
}

func (h *Handler) GetConfirmation(c *gin.Context) {
	ws := middlewares.CurrentSession(c).Workspace
	ticket, ok := ws.Coordinator.Ticket(c.Param("id"))
	if !ok {
		respondError(c, mutations.ErrTicketNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// ResolveConfirmation answers a pending confirm prompt. Only a confirmed
// prompt reaches the network.
func (h *Handler) ResolveConfirmation(c *gin.Context) {
	var input confirmInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Resolve(c.Request.Context(), c.Param("id"), *input.Confirm)
	respondTicket(c, ticket, err)
}
