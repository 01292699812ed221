package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"civicsync-fe/api"
	"civicsync-fe/cache"
	"civicsync-fe/middlewares"
	"civicsync-fe/models"
	"civicsync-fe/mutations"
	"civicsync-fe/views"
)

// GetProfile returns the signed-in user's account and what they may do.
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.Profile(c)
	if err != nil {
		respondError(c, err)
		return
	}
	v := mutations.ViewerOf(user)
	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"canReport":     mutations.Allow(mutations.CanReport(v, h.Config.MaxFreeIssues)),
		"canSubscribe":  mutations.Allow(mutations.CanSubscribe(v)),
		"maxFreeIssues": h.Config.MaxFreeIssues,
		"premiumPrice":  h.Config.PremiumPrice,
	})
}

type profileInput struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=50"`
	PhotoURL *string `json:"photoURL" binding:"omitempty,url"`
	Phone    *string `json:"phone" binding:"omitempty,max=20"`
	Address  *string `json:"address" binding:"omitempty,max=200"`
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var input profileInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if v.Blocked {
		respondError(c, mutations.ErrBlocked)
		return
	}

	patch := api.ProfilePatch{Name: input.Name, PhotoURL: input.PhotoURL, Phone: input.Phone, Address: input.Address}
	ws := middlewares.CurrentSession(c).Workspace
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), mutations.Mutation{
		Action:     "updateProfile",
		Entity:     "user/" + v.Email,
		Invalidate: []cache.Key{cache.NewKey(cache.Profile, v.Email), cache.NewKey(cache.AllUsers)},
		Write: func(ctx context.Context) error {
			_, err := h.API.UpdateProfile(ctx, v.Email, patch)
			return err
		},
	})
	respondTicket(c, ticket, err)
}

// Subscribe asks for confirmation, then opens a checkout session for premium.
func (h *Handler) Subscribe(c *gin.Context) {
	v, err := h.viewer(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := mutations.CanSubscribe(v); err != nil {
		respondError(c, err)
		return
	}

	req := h.checkoutRequest(models.PremiumSubscription, h.Config.PremiumPrice, v.Email)
	ws := middlewares.CurrentSession(c).Workspace
	m := h.checkoutMutation(
		"subscribe", "user/"+v.Email,
		fmt.Sprintf("Subscribe to premium for %.0f? You will be able to report unlimited issues.", h.Config.PremiumPrice),
		req,
	)
	m.Guard = func(ctx context.Context) error {
		fresh, err := h.reloadViewer(ctx, ws, v)
		if err != nil {
			return err
		}
		return mutations.CanSubscribe(fresh)
	}
	ticket, err := ws.Coordinator.Submit(c.Request.Context(), m)
	respondTicket(c, ticket, err)
}

func (h *Handler) checkoutRequest(t models.PaymentType, amount float64, email string) api.CheckoutRequest {
	return api.CheckoutRequest{
		Type:       t,
		Amount:     amount,
		Email:      email,
		SuccessURL: h.Config.PublicURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.Config.PublicURL + "/payment/cancelled",
	}
}

// checkoutMutation starts a checkout once confirmed and hands back the
// redirect URL. Nothing is invalidated until the payment is read back.
func (h *Handler) checkoutMutation(action, entity, prompt string, req api.CheckoutRequest) mutations.Mutation {
	var redirect string
	return mutations.Mutation{
		Action: action,
		Entity: entity,
		Prompt: prompt,
		Write: func(ctx context.Context) (err error) {
			redirect, err = h.Checkout.Start(ctx, req)
			return err
		},
		Result: func() any { return gin.H{"redirectUrl": redirect} },
	}
}

// PaymentSuccess reads back the Payment recorded for a finished checkout.
func (h *Handler) PaymentSuccess(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		respondError(c, invalid("session_id", "This field is required"))
		return
	}
	payment, err := h.API.ConfirmCheckout(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	keys := []cache.Key{
		cache.NewKey(cache.MyPayments),
		cache.NewKey(cache.AllPayments),
		cache.NewKey(cache.Profile),
		cache.NewKey(cache.AllUsers),
	}
	if payment.IssueID != nil {
		keys = append(keys, issueKeys(*payment.IssueID)...)
	}
	middlewares.CurrentSession(c).Workspace.Cache.Invalidate(keys...)
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func (h *Handler) MyPayments(c *gin.Context) {
	email := middlewares.CurrentSession(c).Email()
	renderList(c, myPaymentsView, views.Payments, h.myPayments(c, email), identity[models.Payment])
}
