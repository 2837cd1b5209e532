// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/holomush/accountd/internal/auth"
)

type userResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	HasPassword   bool   `json:"hasPassword"`
}

func newUserResponse(u *auth.User) *userResponse {
	return &userResponse{
		ID:            u.ID.String(),
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified(),
		AvatarURL:     u.AvatarURL,
		HasPassword:   u.HasPassword(),
	}
}

type tokenResponse struct {
	Token   string `json:"token"`
	Refresh string `json:"refresh,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,max=320"`
	Password string `json:"password" validate:"required,max=256"`
}

type signInResponse struct {
	User  *userResponse `json:"user"`
	Token tokenResponse `json:"token"`
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, session, token, err := a.svc.Authenticator.SignIn(r.Context(), req.Email, req.Password, auth.SessionMeta{
		UserAgent: r.UserAgent(),
		IPAddress: r.RemoteAddr,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.setSessionCookie(w, token, session.ExpiresAt)
	writeJSON(w, http.StatusOK, signInResponse{
		User:  newUserResponse(user),
		Token: tokenResponse{Token: token},
	})
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Sessions.RevokeSession(r.Context(), sessionToken(r.Context())); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type sessionResponse struct {
	User *userResponse `json:"user,omitempty"`
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	var resp sessionResponse
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		resp.User = newUserResponse(identity.User)
	}
	writeJSON(w, http.StatusOK, resp)
}

type meResponse struct {
	*userResponse
	Token tokenResponse `json:"token"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		userResponse: newUserResponse(identity.User),
		Token:        tokenResponse{Token: sessionToken(r.Context())},
	})
}

type sessionInfo struct {
	ID         string     `json:"id"`
	UserAgent  string     `json:"userAgent,omitempty"`
	IPAddress  string     `json:"ipAddress,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt time.Time  `json:"lastSeenAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Current    bool       `json:"current"`
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	sessions, err := a.svc.Sessions.ListUserSessions(r.Context(), identity.User.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]sessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionInfo{
			ID:         s.ID.String(),
			UserAgent:  s.UserAgent,
			IPAddress:  s.IPAddress,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
			Current:    identity.Session != nil && s.ID == identity.Session.ID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type sendChangeEmailRequest struct {
	Email       string `json:"email" validate:"max=320"`
	CallbackURL string `json:"callbackUrl" validate:"required"`
}

func (a *API) handleSendChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req sendChangeEmailRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	ok, err := a.svc.Workflow.SendChangeEmail(r.Context(), caller, req.Email, req.CallbackURL)
	a.writeOK(w, r, ok, err)
}

type verifyChangeEmailRequest struct {
	Token       string `json:"token" validate:"required"`
	Email       string `json:"email" validate:"required,max=320"`
	CallbackURL string `json:"callbackUrl" validate:"required"`
}

func (a *API) handleSendVerifyChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyChangeEmailRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	ok, err := a.svc.Workflow.SendVerifyChangeEmail(r.Context(), caller, req.Token, req.Email, req.CallbackURL)
	a.writeOK(w, r, ok, err)
}

type changeEmailRequest struct {
	Token string `json:"token" validate:"required"`
	Email string `json:"email" validate:"required,max=320"`
}

func (a *API) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	user, err := a.svc.Workflow.ChangeEmail(r.Context(), caller, req.Token, req.Email)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

type sendPasswordRequest struct {
	Email       string `json:"email" validate:"max=320"`
	CallbackURL string `json:"callbackUrl" validate:"required"`
}

func (a *API) handleSendSetPassword(w http.ResponseWriter, r *http.Request) {
	var req sendPasswordRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	ok, err := a.svc.Workflow.SendSetPasswordEmail(r.Context(), caller, req.Email, req.CallbackURL)
	a.writeOK(w, r, ok, err)
}

type sendResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,max=320"`
	CallbackURL string `json:"callbackUrl" validate:"required"`
}

func (a *API) handleSendResetPassword(w http.ResponseWriter, r *http.Request) {
	var req sendResetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok, err := a.svc.Workflow.SendResetPasswordEmail(r.Context(), req.Email, req.CallbackURL)
	a.writeOK(w, r, ok, err)
}

type changePasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// handleChangePassword serves both the signed-in change and the
// forgot-password reset; the identity is optional.
func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	user, err := a.svc.Workflow.ChangePassword(r.Context(), caller, req.Token, req.NewPassword)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (a *API) writeOK(w http.ResponseWriter, r *http.Request, ok bool, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: ok})
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string, expiresAt *time.Time) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if expiresAt != nil {
		c.Expires = *expiresAt
		c.MaxAge = int(expiresAt.Sub(a.now()).Seconds())
	}
	http.SetCookie(w, c)
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
