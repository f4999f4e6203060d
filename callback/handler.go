package callback

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	apperrors "github.com/opencouncil/scribe/errors"
	"github.com/opencouncil/scribe/server"
)

// maxDeliveryBytes bounds webhook bodies; provider results are JSON documents
// well under this.
const maxDeliveryBytes = 16 << 20

// Handler returns the gin handler for webhook deliveries. Mount it with
// engine.Any("/callback/:token", callback.Handler(registry)) so providers may
// use any HTTP method.
func Handler(r *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDeliveryBytes))
		if err != nil {
			server.RespondWithError(c, apperrors.InvalidInput("body", "could not read delivery body"))
			return
		}

		switch err := r.Deliver(token, body); {
		case err == nil:
			server.RespondOK(c, gin.H{"received": true})
		case errors.Is(err, ErrTokenNotFound):
			server.RespondWithError(c, apperrors.NotFound("callback", token))
		case errors.Is(err, ErrBadPayload):
			server.RespondWithError(c, apperrors.InvalidInput("body", err.Error()))
		default:
			server.RespondWithError(c, apperrors.Internal(err))
		}
	}
}
