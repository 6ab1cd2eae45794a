package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/auth"
)

type issueTokenRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken signs a bearer token for local development. It is not
// registered in production.
func (s *Server) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		AbortWithError(c, newValidationError("userId", "invalid_user_id", "userId is required"))
		return
	}

	token, expiresAt, err := s.tokens.Issue(auth.Identity{UserID: userID, Email: strings.TrimSpace(req.Email)})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, issueTokenResponse{Token: token, ExpiresAt: expiresAt})
}
