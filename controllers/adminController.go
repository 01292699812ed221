package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync-fe/api"
	"civicsync-fe/cache"
	"civicsync-fe/middlewares"
	"civicsync-fe/models"
	"civicsync-fe/mutations"
	"civicsync-fe/views"
)

type adminIssueRow struct {
	models.Issue
	Busy      bool                 `json:"busy"`
	CanAssign mutations.Affordance `json:"canAssign"`
	CanReject mutations.Affordance `json:"canReject"`
}

type adminUserRow struct {
	models.User
	Busy     bool                 `json:"busy"`
	CanBlock mutations.Affordance `json:"canBlock"`
}

type adminPaymentRow struct {
	models.Payment
	Busy bool `json:"busy"`
}

type staffRow struct {
	models.Staff
	Busy bool `json:"busy"`
}

func userEntity(id primitive.ObjectID) string    { return "user/" + id.Hex() }
func paymentEntity(id primitive.ObjectID) string { return "payment/" + id.Hex() }
func staffEntity(id primitive.ObjectID) string   { return "staff/" + id.Hex() }

func (h *Handler) AdminIssues(c *gin.Context) {
	ws := middlewares.CurrentSession(c).Workspace
	renderList(c, adminIssuesView, views.Issues, h.allIssues(c), func(issue models.Issue) adminIssueRow {
		return adminIssueRow{
			Issue:     issue,
			Busy:      ws.Coordinator.Busy(issueEntity(issue.ID)),
			CanAssign: mutations.Allow(mutations.CanAssign(issue)),
			CanReject: mutations.Allow(mutations.CanReject(issue)),
		}
	})
}

type assignInput struct {
	StaffID string `json:"staffId" binding:"required"`
}

// AssignStaff asks for confirmation, then attaches a staff member to a pending issue.
func (h *Handler) AssignStaff(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var input assignInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	staffID, err := models.ParseID(input.StaffID)
	if err != nil {
		respondError(c, invalid("staffId", "Choose a staff member"))
		return
	}

	issue, err := h.issue(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanAssign(issue); err != nil {
		respondError(c, err)
		return
	}
	st := h.allStaff(c)
	if st.IsError {
		respondError(c, st.Err)
		return
	}
	var staff *models.Staff
	for i := range st.Data {
		if st.Data[i].ID == staffID {
			staff = &st.Data[i]
			break
		}
	}
	if staff == nil {
		respondError(c, invalid("staffId", "Unknown staff member"))
		return
	}

	assignee := *staff
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "assignStaff",
		Entity:     issueEntity(id),
		Prompt:     fmt.Sprintf("Assign %s to %q?", assignee.Name, issue.Title),
		Guard:      h.issueGuard(ws, id, mutations.Viewer{}, skipViewer(mutations.CanAssign)),
		Invalidate: issueKeys(id),
		Write: func(ctx context.Context) error {
			_, err := h.API.AssignStaff(ctx, id, assignee)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

// skipViewer adapts an issue-only rule to issueGuard.
func skipViewer(rule func(models.Issue) error) func(mutations.Viewer, models.Issue) error {
	return func(_ mutations.Viewer, issue models.Issue) error { return rule(issue) }
}

type rejectInput struct {
	Note string `json:"note" binding:"max=500"`
}

func (h *Handler) RejectIssue(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var input rejectInput
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &input); err != nil {
			respondError(c, err)
			return
		}
	}
	issue, err := h.issue(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanReject(issue); err != nil {
		respondError(c, err)
		return
	}

	by := middlewares.CurrentSession(c).Email()
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "rejectIssue",
		Entity:     issueEntity(id),
		Prompt:     fmt.Sprintf("Reject %q? The reporter will be notified.", issue.Title),
		Guard:      h.issueGuard(ws, id, mutations.Viewer{}, skipViewer(mutations.CanReject)),
		Invalidate: issueKeys(id),
		Write: func(ctx context.Context) error {
			_, err := h.API.RejectIssue(ctx, id, input.Note, by)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

func (h *Handler) AdminUsers(c *gin.Context) {
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ws := middlewares.CurrentSession(c).Workspace
	renderList(c, adminUsersView, views.Users, h.allUsers(c), func(u models.User) adminUserRow {
		return adminUserRow{
			User:     u,
			Busy:     ws.Coordinator.Busy(userEntity(u.ID)),
			CanBlock: mutations.Allow(mutations.CanBlock(v, u)),
		}
	})
}

type blockInput struct {
	Blocked *bool `json:"blocked" binding:"required"`
}

// SetBlocked blocks or unblocks a user. The list updates at once and is
// restored if the write fails.
func (h *Handler) SetBlocked(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var input blockInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	blocked := *input.Blocked

	st := h.allUsers(c)
	if st.IsError {
		respondError(c, st.Err)
		return
	}
	var target *models.User
	for i := range st.Data {
		if st.Data[i].ID == id {
			target = &st.Data[i]
			break
		}
	}
	if target == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanBlock(v, *target); err != nil {
		respondError(c, err)
		return
	}

	action := "unblockUser"
	if blocked {
		action = "blockUser"
	}
	usersKey := cache.NewKey(cache.AllUsers)
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:   action,
		Entity:   userEntity(id),
		Strategy: mutations.Optimistic,
		Patches: []mutations.Patch{mutations.PatchList(usersKey, func(users []models.User) []models.User {
			for i := range users {
				if users[i].ID == id {
					users[i].IsBlocked = blocked
				}
			}
			return users
		})},
		Invalidate: []cache.Key{usersKey, cache.NewKey(cache.Profile, target.Email)},
		Write: func(ctx context.Context) error {
			_, err := h.API.SetBlocked(ctx, id, blocked)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

func (h *Handler) AdminPayments(c *gin.Context) {
	ws := middlewares.CurrentSession(c).Workspace
	renderList(c, adminPaymentsView, views.Payments, h.allPayments(c), func(p models.Payment) adminPaymentRow {
		return adminPaymentRow{Payment: p, Busy: ws.Coordinator.Busy(paymentEntity(p.ID))}
	})
}

// DeletePayment asks for confirmation, then removes a payment record.
func (h *Handler) DeletePayment(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	st := h.allPayments(c)
	if st.IsError {
		respondError(c, st.Err)
		return
	}
	var payment *models.Payment
	for i := range st.Data {
		if st.Data[i].ID == id {
			payment = &st.Data[i]
			break
		}
	}
	if payment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}

	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action: "deletePayment",
		Entity: paymentEntity(id),
		Prompt: fmt.Sprintf("Delete payment %s of %.2f by %s? This cannot be undone.",
			payment.TransactionID, payment.Amount, payment.Email),
		Invalidate: []cache.Key{cache.NewKey(cache.AllPayments), cache.NewKey(cache.MyPayments)},
		Write: func(ctx context.Context) error {
			_, err := h.API.DeletePayment(ctx, id)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

func (h *Handler) AdminStaff(c *gin.Context) {
	ws := middlewares.CurrentSession(c).Workspace
	renderList(c, adminStaffView, views.Staff, h.allStaff(c), func(s models.Staff) staffRow {
		return staffRow{Staff: s, Busy: ws.Coordinator.Busy(staffEntity(s.ID))}
	})
}

type staffInput struct {
	Name     string `json:"name" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
	PhotoURL string `json:"photoURL" binding:"omitempty,url"`
}

func (in staffInput) toAPI() api.StaffInput {
	return api.StaffInput{Name: in.Name, Email: in.Email, Phone: in.Phone, PhotoURL: in.PhotoURL}
}

func (h *Handler) CreateStaff(c *gin.Context) {
	var input staffInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	var ack api.Ack
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "createStaff",
		Entity:     "staff/new/" + input.Email,
		Invalidate: []cache.Key{cache.NewKey(cache.AllStaff)},
		Write: func(ctx context.Context) (err error) {
			ack, err = h.API.CreateStaff(ctx, input.toAPI())
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

func (h *Handler) UpdateStaff(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var input staffInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "updateStaff",
		Entity:     staffEntity(id),
		Invalidate: []cache.Key{cache.NewKey(cache.AllStaff), cache.NewKey(cache.AllIssues)},
		Write: func(ctx context.Context) error {
			_, err := h.API.UpdateStaff(ctx, id, input.toAPI())
			return err
		},
	})
	respondTicket(c, ticket, err)
}

func (h *Handler) DeleteStaff(c *gin.Context) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	name := id.Hex()
	for _, s := range h.allStaff(c).Data {
		if s.ID == id {
			name = s.Name
		}
	}
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "deleteStaff",
		Entity:     staffEntity(id),
		Prompt:     fmt.Sprintf("Remove %s from staff?", name),
		Invalidate: []cache.Key{cache.NewKey(cache.AllStaff)},
		Write: func(ctx context.Context) error {
			_, err := h.API.DeleteStaff(ctx, id)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

// Stats builds the admin dashboard from the cached collections.
func (h *Handler) Stats(c *gin.Context) {
	issues := h.allIssues(c)
	payments := h.allPayments(c)
	users := h.allUsers(c)
	if issues.IsError && len(issues.Data) == 0 {
		respondError(c, issues.Err)
		return
	}
	if payments.IsError && len(payments.Data) == 0 {
		respondError(c, payments.Err)
		return
	}

	premium := 0
	for _, u := range users.Data {
		if u.IsPremium {
			premium++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"issues":       views.SummarizeIssues(issues.Data, time.Now()),
		"payments":     views.SummarizePayments(payments.Data),
		"totalUsers":   len(users.Data),
		"premiumUsers": premium,
		"loading":      issues.IsLoading || payments.IsLoading || users.IsLoading,
	})
}
