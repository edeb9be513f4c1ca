package board

import (
	"net/http"

	"flowboard/controller"
	"flowboard/dto"
	"flowboard/session"

	"github.com/gin-gonic/gin"
)

func BoardController(router gin.IRoutes, sessions *session.Manager) {
	router.GET("/board", func(c *gin.Context) {
		GetBoard(c, sessions)
	})
	router.POST("/board/reload", func(c *gin.Context) {
		ReloadBoard(c, sessions)
	})
	router.PUT("/board/active", func(c *gin.Context) {
		SetActiveProject(c, sessions)
	})
}

func GetBoard(c *gin.Context, sessions *session.Manager) {
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ws.Store.Snapshot())
}

func ReloadBoard(c *gin.Context, sessions *session.Manager) {
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	if err := ws.Store.Reload(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to reload board: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, ws.Store.Snapshot())
}

func SetActiveProject(c *gin.Context, sessions *session.Manager) {
	var req dto.SetActiveProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	if err := ws.Store.SetActiveProject(req.ProjectID); err != nil {
		controller.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeProjectId": req.ProjectID})
}
