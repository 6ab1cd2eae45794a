package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/creditgate/internal/observability/context"
)

const contextIdentityKey = "auth_identity"

// Identify verifies the bearer token when one is sent. Requests without a
// token continue anonymously; a bad token is recorded and rejected by
// RequireIdentity.
func Identify(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		id, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			c.Set(contextIdentityKey, err)
			c.Next()
			return
		}

		c.Set(contextIdentityKey, id)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), id.UserID))
		c.Next()
	}
}

// RequireIdentity aborts with onMissing unless Identify verified the caller.
func RequireIdentity(onMissing func(c *gin.Context, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := IdentityFrom(c); err != nil {
			onMissing(c, err)
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity verified for this request.
func IdentityFrom(c *gin.Context) (Identity, error) {
	value, ok := c.Get(contextIdentityKey)
	if !ok {
		return Identity{}, ErrMissingToken
	}
	switch v := value.(type) {
	case Identity:
		return v, nil
	case error:
		return Identity{}, v
	default:
		return Identity{}, ErrInvalidToken
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
