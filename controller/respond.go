// Package controller holds what the HTTP controllers share: workspace lookup
// and the error to status mapping.
package controller

import (
	"errors"
	"net/http"

	"flowboard/board"
	"flowboard/session"
	"flowboard/timer"

	"github.com/gin-gonic/gin"
)

// Workspace resolves the caller's workspace. On failure the response is
// already written.
func Workspace(c *gin.Context, sessions *session.Manager) (*session.Workspace, bool) {
	userID := c.MustGet("userId").(string)
	ws, err := sessions.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Board is unavailable: " + err.Error()})
		return nil, false
	}
	return ws, true
}

func Status(err error) int {
	var remote *board.RemoteError
	switch {
	case errors.Is(err, board.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, board.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, board.ErrOwnerProtected), errors.Is(err, board.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, board.ErrMemberInactive),
		errors.Is(err, timer.ErrBusy),
		errors.Is(err, timer.ErrAlreadyRunning),
		errors.Is(err, timer.ErrNotRunning):
		return http.StatusConflict
	case errors.As(err, &remote):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Error writes err as {"error": ...} with the mapped status.
func Error(c *gin.Context, err error) {
	c.JSON(Status(err), gin.H{"error": err.Error()})
}
