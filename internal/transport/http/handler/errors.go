package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mohamedazimal27/rag-docmind/internal/transport/http/middleware"
	"github.com/mohamedazimal27/rag-docmind/internal/transport/http/response"
)

// errorRule maps a sentinel to an HTTP status and response code. An empty
// message passes the error text through to the client.
type errorRule struct {
	target  error
	status  int
	code    int
	message string
}

// writeError answers with the first rule err matches, or a 500 carrying
// fallback.
func writeError(c *gin.Context, err error, rules []errorRule, fallback string) {
	for _, r := range rules {
		if !errors.Is(err, r.target) {
			continue
		}
		msg := r.message
		if msg == "" {
			msg = err.Error()
		}
		response.Error(c, r.status, r.code, msg)
		return
	}
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
}

// requireUser returns the authenticated user id or writes a 401.
func requireUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
	}
	return userID, ok
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return false
	}
	return true
}
