package board

import (
	"sort"
	"time"

	"flowboard/model"
)

// State is the in-memory board mirror of one user.
type State struct {
	UserID          string                `json:"userId"`
	Projects        []model.Project       `json:"projects"`
	Roles           map[string]model.Role `json:"roles"`
	ActiveProjectID string                `json:"activeProjectId"`
	LoadedAt        time.Time             `json:"loadedAt"`
}

func (st State) Clone() State {
	out := st
	out.Projects = make([]model.Project, len(st.Projects))
	for i, p := range st.Projects {
		out.Projects[i] = p.Clone()
	}
	out.Roles = make(map[string]model.Role, len(st.Roles))
	for k, v := range st.Roles {
		out.Roles[k] = v
	}
	return out
}

func (st *State) project(projectID string) *model.Project {
	for i := range st.Projects {
		if st.Projects[i].ProjectID == projectID {
			return &st.Projects[i]
		}
	}
	return nil
}

// flow finds a flow across all projects.
func (st *State) flow(flowID string) (*model.Project, *model.Flow) {
	for i := range st.Projects {
		if f := st.Projects[i].Flow(flowID); f != nil {
			return &st.Projects[i], f
		}
	}
	return nil, nil
}

func (st *State) task(taskID string) (*model.Flow, *model.Task) {
	for i := range st.Projects {
		p := &st.Projects[i]
		for j := range p.Flows {
			f := &p.Flows[j]
			for k := range f.Tasks {
				if f.Tasks[k].TaskID == taskID {
					return f, &f.Tasks[k]
				}
			}
		}
	}
	return nil, nil
}

// sortBoard orders flows by position and tasks by position, newest first on
// ties. The tiebreak is display only and never written back.
func sortBoard(projects []model.Project) {
	for i := range projects {
		flows := projects[i].Flows
		sort.SliceStable(flows, func(a, b int) bool { return flows[a].Position < flows[b].Position })
		for j := range flows {
			sortTasks(flows[j].Tasks)
		}
	}
}

func sortTasks(tasks []model.Task) {
	sort.SliceStable(tasks, func(a, b int) bool {
		if tasks[a].Position != tasks[b].Position {
			return tasks[a].Position < tasks[b].Position
		}
		return tasks[a].CreatedAt.After(tasks[b].CreatedAt)
	})
}
