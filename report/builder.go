package report

import (
	"context"
	"fmt"
	"log"
	"time"

	"flowboard/model"
	"flowboard/timespan"
)

// EntrySource is the part of the storage collaborator the builder reads.
type EntrySource interface {
	FetchTimeEntries(ctx context.Context, taskIDs []string, start, end time.Time) ([]model.TimeEntry, error)
}

type Request struct {
	Projects []model.Project
	// ProjectID narrows the report to one project when set.
	ProjectID string
	Window    string
	Filter    string
	Rates     Rates
	// Viewer is the requesting user. Costs are hidden on projects where the
	// viewer is neither owner nor granted the cost capability. Empty shows all.
	Viewer string
}

type Report struct {
	Window         timespan.Window `json:"window"`
	Degraded       bool            `json:"degraded"`
	DegradedReason string          `json:"degradedReason,omitempty"`
	Filter         string          `json:"filter"`
	CostHidden     bool            `json:"costHidden"`
	TotalHours     float64         `json:"totalHours"`
	TotalCost      float64         `json:"totalCost"`
	Projects       []ProjectReport `json:"projects"`
}

type Builder struct {
	source EntrySource
}

func NewBuilder(source EntrySource) *Builder {
	return &Builder{source: source}
}

// Build fetches the time entries of every task in scope, clips them to the
// requested window and aggregates. A malformed window falls back to all time
// and marks the report degraded.
func (b *Builder) Build(ctx context.Context, req Request) (Report, error) {
	rep := Report{Filter: ParseFilter(req.Filter).String()}

	w, err := timespan.ParseWindow(req.Window)
	if err != nil {
		log.Printf("[report] %v, falling back to all-time", err)
		rep.Degraded = true
		rep.DegradedReason = err.Error()
		w = timespan.Window{}
	}
	rep.Window = w

	projects := req.Projects
	if req.ProjectID != "" {
		projects = nil
		for _, p := range req.Projects {
			if p.ProjectID == req.ProjectID {
				projects = append(projects, p)
			}
		}
	}

	var taskIDs []string
	for _, p := range projects {
		for _, f := range p.Flows {
			for _, t := range f.Tasks {
				taskIDs = append(taskIDs, t.TaskID)
			}
		}
	}

	secondsByTask := make(map[string]int64, len(taskIDs))
	if len(taskIDs) > 0 {
		entries, err := b.source.FetchTimeEntries(ctx, taskIDs, w.Start, w.End)
		if err != nil {
			return Report{}, fmt.Errorf("fetch time entries: %w", err)
		}
		for _, e := range entries {
			secondsByTask[e.TaskID] += timespan.Clip(timespan.Interval{Start: e.Start, Stop: e.Stop, Duration: e.Duration}, w)
		}
	}

	rep.Projects = Aggregate(projects, secondsByTask, ParseFilter(req.Filter), req.Rates)
	for i := range rep.Projects {
		if req.Viewer != "" && !canViewCost(&projects[i], req.Viewer) {
			hideCost(&rep.Projects[i])
			rep.CostHidden = true
		}
		rep.TotalHours += rep.Projects[i].TotalHours
		rep.TotalCost += rep.Projects[i].TotalCost
	}
	return rep, nil
}

func canViewCost(p *model.Project, userID string) bool {
	m := p.Member(userID)
	if m == nil {
		return false
	}
	return m.Role == model.RoleOwner || m.CanViewCost
}

func hideCost(p *ProjectReport) {
	p.TotalCost = 0
	for i := range p.Members {
		p.Members[i].Rate = 0
		p.Members[i].Cost = 0
	}
}
