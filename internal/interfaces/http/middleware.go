package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/membership-approvals/internal/domain/apperr"
	"github.com/garyjia/membership-approvals/internal/domain/entity"
)

// Principal headers set by the upstream authentication layer
const (
	headerUserID    = "X-User-ID"
	headerUserRoles = "X-User-Roles"

	actorKey = "actor"
)

// actorMiddleware resolves the acting principal once per request.
// An absent principal is not rejected here; mutating services return Unauthorized.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(actorKey, entity.Actor{
			UserID: strings.TrimSpace(c.GetHeader(headerUserID)),
			Roles:  splitList(c.GetHeader(headerUserRoles)),
		})
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
