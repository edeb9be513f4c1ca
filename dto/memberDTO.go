package dto

import (
	"flowboard/board"
	"flowboard/model"
)

type AddMemberRequest struct {
	UserID     string   `json:"userId" binding:"required"`
	Role       string   `json:"role" binding:"required,role"`
	HourlyRate *float64 `json:"hourlyRate" binding:"omitempty,gte=0"`
}

type UpdateMemberRequest struct {
	Role        *string  `json:"role" binding:"omitempty,role"`
	Active      *bool    `json:"active"`
	HourlyRate  *float64 `json:"hourlyRate" binding:"omitempty,gte=0"`
	ClearRate   bool     `json:"clearRate"`
	CanTrack    *bool    `json:"canTrack"`
	CanViewCost *bool    `json:"canViewCost"`
}

func (r UpdateMemberRequest) Patch() board.MemberPatch {
	p := board.MemberPatch{
		Active:      r.Active,
		HourlyRate:  r.HourlyRate,
		ClearRate:   r.ClearRate && r.HourlyRate == nil,
		CanTrack:    r.CanTrack,
		CanViewCost: r.CanViewCost,
	}
	if r.Role != nil {
		role := model.Role(*r.Role)
		p.Role = &role
	}
	return p
}
