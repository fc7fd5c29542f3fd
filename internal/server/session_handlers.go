package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createSessionPayload struct {
	Username string `json:"username"`
}

type sessionResponse struct {
	Success   bool   `json:"success"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expires_at_s"`
}

func (h *httpHandler) handleCreateSession(c *gin.Context) {
	var request createSessionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBadRequest(c, err)
		return
	}
	token, issued, err := h.sessions.Issue(request.Username)
	if err != nil {
		h.logger.Debug("session issue rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, errorResponse{Success: false, Error: messageInvalidSession, Code: codeInvalidRequest})
		return
	}
	h.setSessionCookie(c, token, issued.ExpiresAt)
	c.JSON(http.StatusOK, sessionResponse{Success: true, Username: issued.DisplayName, ExpiresAt: issued.ExpiresAt.Unix()})
}

func (h *httpHandler) handleGetSession(c *gin.Context) {
	current, ok := session.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Success: false, Error: messageNoSession, Code: codeInvalidRequest})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Success: true, Username: current.DisplayName, ExpiresAt: current.ExpiresAt.Unix()})
}

func (h *httpHandler) handleDeleteSession(c *gin.Context) {
	h.setSessionCookie(c, "", time.Unix(0, 0))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) setSessionCookie(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if value == "" || maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.sessions.CookieName(),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
