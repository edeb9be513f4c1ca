package report

import "strings"

// UnassignedKey is the reserved bucket for time on tasks without assignees.
const UnassignedKey = "__unassigned__"

type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterUnassigned
	FilterMember
)

type Filter struct {
	Kind     FilterKind
	MemberID string
}

// ParseFilter maps "", "all", "unassigned" or a member id to a Filter.
func ParseFilter(s string) Filter {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", "all":
		return Filter{Kind: FilterAll}
	case "unassigned":
		return Filter{Kind: FilterUnassigned}
	}
	return Filter{Kind: FilterMember, MemberID: strings.TrimSpace(s)}
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterUnassigned:
		return "unassigned"
	case FilterMember:
		return f.MemberID
	}
	return "all"
}

// buckets returns the attribution keys for a task's assignees under f, and
// whether the task is in scope at all. Under FilterAll the task's time is
// divided across the returned keys; otherwise the single key gets it all.
func (f Filter) buckets(assignees []string) ([]string, bool) {
	switch f.Kind {
	case FilterUnassigned:
		if len(assignees) > 0 {
			return nil, false
		}
		return []string{UnassignedKey}, true
	case FilterMember:
		for _, id := range assignees {
			if id == f.MemberID {
				return []string{id}, true
			}
		}
		return nil, false
	}
	if len(assignees) == 0 {
		return []string{UnassignedKey}, true
	}
	return dedupe(assignees), true
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
