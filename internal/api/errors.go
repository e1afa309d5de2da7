package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hk-gateway/internal/order"
	"hk-gateway/internal/scenario"
	"hk-gateway/pkg/exchanges/hashkey"
)

// transportErrorBody is the fixed payload for network-level failures.
var transportErrorBody = gin.H{"status": "error", "message": "request error"}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"status":  "error",
		"message": msg,
		"code":    code,
	})
}

// respondUpstream writes a raw exchange payload unchanged.
func respondUpstream(c *gin.Context, status int, body []byte) {
	if len(body) == 0 {
		c.Status(status)
		return
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

// respondFailure maps err onto an HTTP status. Exchange rejections keep the
// exchange body; transport failures get the uniform body.
func (s *Server) respondFailure(c *gin.Context, err error) {
	if apiErr, ok := hashkey.AsAPIError(err); ok {
		status := apiErr.HTTPStatus
		if status < http.StatusBadRequest {
			status = http.StatusUnprocessableEntity
		}
		respondUpstream(c, status, apiErr.Body)
		return
	}

	switch {
	case errors.Is(err, hashkey.ErrTransport):
		s.log.Warn("exchange unreachable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, transportErrorBody)
	case errors.Is(err, order.ErrInvalidRequest),
		errors.Is(err, scenario.ErrInvalidBook),
		errors.Is(err, scenario.ErrInvalidParams):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, scenario.ErrAlreadyRunning):
		respondError(c, http.StatusConflict, "ALREADY_RUNNING", err.Error())
	default:
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
