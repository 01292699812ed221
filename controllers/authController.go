package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"civicsync-fe/api"
	"civicsync-fe/middlewares"
	"civicsync-fe/session"
)

type signInInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type signUpInput struct {
	Name     string `json:"name" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	PhotoURL string `json:"photoURL" binding:"omitempty,url"`
}

// SignIn exchanges credentials with the identity provider and starts a
// signed-in session.
func (h *Handler) SignIn(c *gin.Context) {
	var input signInInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	acc, err := h.Identity.SignIn(c.Request.Context(), api.Credentials{Email: input.Email, Password: input.Password})
	if err != nil {
		h.identityFailed(c, err)
		return
	}
	h.startSession(c, acc)
}

func (h *Handler) SignUp(c *gin.Context) {
	var input signUpInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	acc, err := h.Identity.SignUp(c.Request.Context(), api.Credentials{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		PhotoURL: input.PhotoURL,
	})
	if err != nil {
		h.identityFailed(c, err)
		return
	}
	if acc.DisplayName == "" || acc.DisplayName == input.Email {
		acc.DisplayName = input.Name
	}
	h.startSession(c, acc)
}

func (h *Handler) identityFailed(c *gin.Context, err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Status < 500 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if errors.Is(err, api.ErrNoIdentity) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	respondError(c, err)
}

// startSession replaces the visitor's session with a signed-in one so that
// nothing cached before sign-in leaks into it.
func (h *Handler) startSession(c *gin.Context, acc api.Account) {
	ctx := api.WithToken(c.Request.Context(), acc.Token)
	if _, err := h.API.SaveUser(ctx, acc.DisplayName, acc.Email, acc.PhotoURL); err != nil {
		log.WithError(err).WithField("email", acc.Email).Warn("could not save user record")
	}

	rec := session.Record{
		ID:            uuid.NewString(),
		Email:         acc.Email,
		DisplayName:   acc.DisplayName,
		PhotoURL:      acc.PhotoURL,
		UpstreamToken: acc.Token,
	}
	if err := h.Sessions.Save(c.Request.Context(), rec, h.Config.SessionTTL); err != nil {
		respondError(c, err)
		return
	}
	if err := middlewares.IssueSessionCookie(c, rec.ID, h.sessionOptions()); err != nil {
		respondError(c, err)
		return
	}
	if prev := middlewares.CurrentSession(c); prev != nil {
		h.Registry.Drop(prev.ID)
	}

	log.WithField("email", acc.Email).Info("user signed in")
	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{"email": rec.Email, "displayName": rec.DisplayName, "photoURL": rec.PhotoURL},
	})
}

func (h *Handler) SignOut(c *gin.Context) {
	cur := middlewares.CurrentSession(c)
	if cur != nil {
		if err := h.Sessions.Revoke(c.Request.Context(), cur.ID); err != nil {
			log.WithError(err).Warn("could not revoke session")
		}
		cur.Workspace.Forget()
		h.Registry.Drop(cur.ID)
	}
	c.SetCookie(middlewares.SessionCookie, "", -1, "/", "", h.sessionOptions().SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

// Me describes the current session; visitors get authenticated=false.
func (h *Handler) Me(c *gin.Context) {
	cur := middlewares.CurrentSession(c)
	if !cur.SignedIn() {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user": gin.H{
			"email":       cur.Record.Email,
			"displayName": cur.Record.DisplayName,
			"photoURL":    cur.Record.PhotoURL,
		},
	})
}
