package timer

import (
	"errors"
	"log"
	"net/http"

	"flowboard/board"
	"flowboard/controller"
	"flowboard/dto"
	"flowboard/session"

	"github.com/gin-gonic/gin"
)

func TimerController(router gin.IRoutes, sessions *session.Manager) {
	router.GET("/timer", func(c *gin.Context) {
		GetTimer(c, sessions)
	})
	router.POST("/tasks/:taskId/timer/start", func(c *gin.Context) {
		StartTimer(c, sessions)
	})
	router.POST("/tasks/:taskId/timer/stop", func(c *gin.Context) {
		StopTimer(c, sessions)
	})
}

func timerState(ws *session.Workspace) dto.TimerResponse {
	live, ok := ws.Timer.Refresh()
	if !ok {
		return dto.TimerResponse{}
	}
	started := live.StartedAt
	return dto.TimerResponse{
		Running:          true,
		TaskID:           live.TaskID,
		StartedAt:        &started,
		BaselineSeconds:  live.BaselineSeconds,
		ElapsedSeconds:   live.ElapsedSeconds,
		DisplayedSeconds: live.Displayed(),
	}
}

func GetTimer(c *gin.Context, sessions *session.Manager) {
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, timerState(ws))
}

func StartTimer(c *gin.Context, sessions *session.Manager) {
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	if err := ws.Dispatcher.StartTimer(c.Request.Context(), c.Param("taskId")); err != nil {
		controller.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, timerState(ws))
}

// StopTimer answers 200 even when the server did not confirm the stop: the
// local timer is stopped either way and the reply carries a warning.
func StopTimer(c *gin.Context, sessions *session.Manager) {
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	taskID := c.Param("taskId")
	final, err := ws.Dispatcher.StopTimer(c.Request.Context(), taskID)
	resp := dto.StopTimerResponse{TaskID: taskID, FinalSeconds: final}
	var remote *board.RemoteError
	switch {
	case errors.As(err, &remote):
		log.Printf("[timer] stop of %s not confirmed: %v", taskID, err)
		resp.Warning = err.Error()
	case err != nil:
		controller.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
