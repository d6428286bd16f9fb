package http

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mrlokans/lending/internal/auth"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an id that ends up in the
// audit trail. A well-formed incoming X-Request-ID is kept.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(auth.ContextKeyRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
