package member

import (
	"net/http"

	"flowboard/controller"
	"flowboard/dto"
	"flowboard/model"
	"flowboard/session"

	"github.com/gin-gonic/gin"
)

func MemberController(router gin.IRoutes, sessions *session.Manager) {
	router.POST("/projects/:projectId/members", func(c *gin.Context) {
		AddMember(c, sessions)
	})
	router.PATCH("/projects/:projectId/members/:userId", func(c *gin.Context) {
		UpdateMember(c, sessions)
	})
	router.DELETE("/projects/:projectId/members/:userId", func(c *gin.Context) {
		RemoveMember(c, sessions)
	})
}

func AddMember(c *gin.Context, sessions *session.Manager) {
	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	projectID := c.Param("projectId")
	err := ws.Dispatcher.AddMember(c.Request.Context(), projectID, req.UserID, model.Role(req.Role), req.HourlyRate)
	if err != nil {
		controller.Error(c, err)
		return
	}
	m, _ := ws.Store.Member(projectID, req.UserID)
	c.JSON(http.StatusCreated, m)
}

func UpdateMember(c *gin.Context, sessions *session.Manager) {
	var req dto.UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	projectID, userID := c.Param("projectId"), c.Param("userId")
	if err := ws.Dispatcher.UpdateMember(c.Request.Context(), projectID, userID, req.Patch()); err != nil {
		controller.Error(c, err)
		return
	}
	m, _ := ws.Store.Member(projectID, userID)
	c.JSON(http.StatusOK, m)
}

func RemoveMember(c *gin.Context, sessions *session.Manager) {
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	if err := ws.Dispatcher.RemoveMember(c.Request.Context(), c.Param("projectId"), c.Param("userId")); err != nil {
		controller.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}
