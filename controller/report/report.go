package report

import (
	"net/http"

	"flowboard/controller"
	"flowboard/dto"
	"flowboard/report"
	"flowboard/session"

	"github.com/gin-gonic/gin"
)

func ReportController(router gin.IRoutes, sessions *session.Manager, rates report.Rates) {
	router.GET("/reports", func(c *gin.Context) {
		GetReport(c, sessions, rates)
	})
}

// GetReport builds a billing report over the caller's board. A rate query
// parameter overrides every member rate for this report.
func GetReport(c *gin.Context, sessions *session.Manager, rates report.Rates) {
	var q dto.ReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	ws, ok := controller.Workspace(c, sessions)
	if !ok {
		return
	}
	if q.Rate != nil {
		rates.Override = q.Rate
	}
	rep, err := report.NewBuilder(ws.Backend).Build(c.Request.Context(), report.Request{
		Projects:  ws.Store.Snapshot().Projects,
		ProjectID: q.ProjectID,
		Window:    q.Window,
		Filter:    q.Filter,
		Rates:     rates,
		Viewer:    ws.UserID,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to build report: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}
