package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reelforge/reelforge-backend/internal/http/response"
	"github.com/reelforge/reelforge-backend/internal/pkg/apperr"
)

const ownerContextKey = "owner_user_id"

// RequireOwner resolves the calling owner from the X-Owner-ID header.
// There is no account system; the owner id is an opaque caller-supplied
// UUID and every query is scoped by it.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Owner-ID")
		if raw == "" {
			raw = c.Query("owner_id")
		}
		if raw == "" {
			response.RespondError(c, http.StatusForbidden, "ownership", apperr.Ownershipf("missing X-Owner-ID"))
			c.Abort()
			return
		}
		owner, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusForbidden, "ownership", apperr.Ownershipf("bad owner id"))
			c.Abort()
			return
		}
		c.Set(ownerContextKey, owner)
		c.Next()
	}
}

// OwnerID reads the owner set by RequireOwner.
func OwnerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ownerContextKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
