package report

import (
	"sort"

	"flowboard/model"
	"flowboard/timespan"
)

// Rates resolves the hourly cost rate per bucket.
type Rates struct {
	// Default applies to members without a rate and to the Unassigned bucket.
	Default float64
	// Override, when set, replaces every rate.
	Override *float64
}

func (r Rates) forMember(m *model.Member) float64 {
	if r.Override != nil {
		return *r.Override
	}
	if m == nil {
		return r.Default
	}
	return m.Rate(r.Default)
}

type MemberTotal struct {
	UserID  string  `json:"userId"`
	Label   string  `json:"label"`
	Active  bool    `json:"active"`
	Seconds float64 `json:"seconds"`
	Hours   float64 `json:"hours"`
	Rate    float64 `json:"rate"`
	Cost    float64 `json:"cost"`
}

type ProjectReport struct {
	ProjectID    string        `json:"projectId"`
	ProjectName  string        `json:"projectName"`
	TaskCount    int           `json:"taskCount"`
	TotalSeconds int64         `json:"totalSeconds"`
	TotalHours   float64       `json:"totalHours"`
	TotalCost    float64       `json:"totalCost"`
	Members      []MemberTotal `json:"members"`
}

// Aggregate rolls seconds-in-window per task up into per-project and
// per-member hours and cost. Shares are accumulated in seconds and converted
// once at the end. Output order depends only on the input order.
func Aggregate(projects []model.Project, secondsByTask map[string]int64, f Filter, rates Rates) []ProjectReport {
	out := make([]ProjectReport, 0, len(projects))
	for i := range projects {
		out = append(out, aggregateProject(&projects[i], secondsByTask, f, rates))
	}
	return out
}

func aggregateProject(p *model.Project, secondsByTask map[string]int64, f Filter, rates Rates) ProjectReport {
	rep := ProjectReport{ProjectID: p.ProjectID, ProjectName: p.Name}
	acc := make(map[string]float64)

	for _, flow := range p.Flows {
		for _, task := range flow.Tasks {
			keys, ok := f.buckets(task.AssigneeIDs)
			if !ok {
				continue
			}
			rep.TaskCount++
			secs := secondsByTask[task.TaskID]
			if secs <= 0 {
				continue
			}
			rep.TotalSeconds += secs
			n := len(keys)
			if f.Kind != FilterAll {
				n = 1
			}
			share := timespan.Split(secs, n)
			for _, k := range keys {
				acc[k] += share
			}
		}
	}

	for _, key := range orderedKeys(p, acc) {
		secs := acc[key]
		mt := MemberTotal{UserID: key, Seconds: secs, Hours: secs / 3600}
		if key == UnassignedKey {
			mt.Label = "Unassigned"
			mt.Rate = rates.forMember(nil)
		} else if m := p.Member(key); m != nil {
			mt.Label = m.Identity.Label()
			mt.Active = m.Active
			mt.Rate = rates.forMember(m)
		} else {
			mt.Label = model.Identity{UserID: key}.Label()
			mt.Rate = rates.forMember(nil)
		}
		mt.Cost = mt.Hours * mt.Rate
		rep.TotalCost += mt.Cost
		rep.Members = append(rep.Members, mt)
	}
	rep.TotalHours = float64(rep.TotalSeconds) / 3600
	return rep
}

// orderedKeys lists accumulated keys in project member order, then ids that
// are not project members sorted, then the Unassigned bucket.
func orderedKeys(p *model.Project, acc map[string]float64) []string {
	keys := make([]string, 0, len(acc))
	known := make(map[string]bool, len(p.Members))
	for _, m := range p.Members {
		known[m.UserID] = true
		if _, ok := acc[m.UserID]; ok {
			keys = append(keys, m.UserID)
		}
	}
	var strays []string
	for k := range acc {
		if k != UnassignedKey && !known[k] {
			strays = append(strays, k)
		}
	}
	sort.Strings(strays)
	keys = append(keys, strays...)
	if _, ok := acc[UnassignedKey]; ok {
		keys = append(keys, UnassignedKey)
	}
	return keys
}
