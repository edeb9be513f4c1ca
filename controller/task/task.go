package task

import (
	"net/http"

	"flowboard/controller"
	"flowboard/dto"
	"flowboard/session"

	"github.com/gin-gonic/gin"
)

func TaskController(router gin.IRoutes, sessions *session.Manager) {
	router.PUT("/flows/:flowId/order", func(c *gin.Context) {
		ReorderFlow(c, sessions)
	})
	router.POST("/tasks/:taskId/move", func(c *gin.Context) {
		MoveTask(c, sessions)
	})
	router.PATCH("/tasks/:taskId", func(c *gin.Context) {
		UpdateTask(c, sessions)
	})
	router.DELETE("/tasks/:taskId", func(c *gin.Context) {
		DeleteTask(c, sessions)
	})
	router.POST("/tasks/:taskId/assignees/:userId/toggle", func(c *gin.Context) {
		ToggleAssignee(c, sessions)
	})
}

func ReorderFlow(c *gin.Context, sessions *session.Manager) {
	var req dto.ReorderTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	flowID := c.Param("flowId")
	if err := ws.Dispatcher.ReorderFlowTasks(c.Request.Context(), flowID, req.TaskIDs); err != nil {
		controller.Error(c, err)
		return
	}
	flow, _ := ws.Store.Flow(flowID)
	c.JSON(http.StatusOK, flow)
}

func MoveTask(c *gin.Context, sessions *session.Manager) {
	var req dto.MoveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}
	taskID := c.Param("taskId")
	if err := ws.Dispatcher.MoveTask(c.Request.Context(), taskID, req.FlowID, index); err != nil {
		controller.Error(c, err)
		return
	}
	t, _ := ws.Store.Task(taskID)
	c.JSON(http.StatusOK, t)
}

func UpdateTask(c *gin.Context, sessions *session.Manager) {
	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	taskID := c.Param("taskId")
	if err := ws.Dispatcher.UpdateTask(c.Request.Context(), taskID, req.Patch()); err != nil {
		controller.Error(c, err)
		return
	}
	t, _ := ws.Store.Task(taskID)
	c.JSON(http.StatusOK, t)
}

func DeleteTask(c *gin.Context, sessions *session.Manager) {
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	if err := ws.Dispatcher.DeleteTask(c.Request.Context(), c.Param("taskId")); err != nil {
		controller.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

func ToggleAssignee(c *gin.Context, sessions *session.Manager) {
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	taskID, userID := c.Param("taskId"), c.Param("userId")
	assigned, err := ws.Dispatcher.ToggleAssignee(c.Request.Context(), taskID, userID)
	if err != nil {
		controller.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToggleAssigneeResponse{TaskID: taskID, UserID: userID, Assigned: assigned})
}
