package model

import "time"

type Project struct {
	ProjectID string    `firestore:"projectid,omitempty" json:"projectId"`
	Name      string    `firestore:"name,omitempty" json:"name"`
	Archived  bool      `firestore:"archived" json:"archived"`
	CreatedBy string    `firestore:"createdby,omitempty" json:"createdBy"`
	CreatedAt time.Time `firestore:"createdat,omitempty" json:"createdAt"`
	Flows     []Flow    `firestore:"-" json:"flows"`
	Members   []Member  `firestore:"-" json:"members"`
}

// Flow is a board column. Position orders flows within a project and is not
// required to be contiguous.
type Flow struct {
	FlowID    string    `firestore:"flowid,omitempty" json:"flowId"`
	ProjectID string    `firestore:"projectid,omitempty" json:"projectId"`
	Name      string    `firestore:"name,omitempty" json:"name"`
	Position  int       `firestore:"position" json:"position"`
	CreatedAt time.Time `firestore:"createdat,omitempty" json:"createdAt"`
	Tasks     []Task    `firestore:"-" json:"tasks"`
}

// Member returns the membership row for userID, or nil.
func (p *Project) Member(userID string) *Member {
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			return &p.Members[i]
		}
	}
	return nil
}

func (p *Project) Flow(flowID string) *Flow {
	for i := range p.Flows {
		if p.Flows[i].FlowID == flowID {
			return &p.Flows[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the project tree.
func (p Project) Clone() Project {
	out := p
	out.Flows = make([]Flow, len(p.Flows))
	for i, f := range p.Flows {
		out.Flows[i] = f.Clone()
	}
	out.Members = make([]Member, len(p.Members))
	for i, m := range p.Members {
		out.Members[i] = m.Clone()
	}
	return out
}

func (f Flow) Clone() Flow {
	out := f
	out.Tasks = make([]Task, len(f.Tasks))
	for i, t := range f.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}
