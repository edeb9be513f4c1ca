package dto

import "time"

type TimerResponse struct {
	Running          bool       `json:"running"`
	TaskID           string     `json:"taskId,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	BaselineSeconds  int64      `json:"baselineSeconds"`
	ElapsedSeconds   int64      `json:"elapsedSeconds"`
	DisplayedSeconds int64      `json:"displayedSeconds"`
}

type StopTimerResponse struct {
	TaskID       string `json:"taskId"`
	FinalSeconds int64  `json:"finalSeconds"`
	// Warning is set when the server did not confirm the stop.
	Warning string `json:"warning,omitempty"`
}

type ReportQuery struct {
	Window    string   `form:"window"`
	Filter    string   `form:"filter"`
	ProjectID string   `form:"projectId"`
	Rate      *float64 `form:"rate" binding:"omitempty,gte=0"`
}
