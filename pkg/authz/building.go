package authz

import (
	"sort"
	"strings"
)

type BuildingRuleKind string

const (
	BuildingRuleUnrestricted      BuildingRuleKind = "unrestricted"
	BuildingRuleFixedAllowList    BuildingRuleKind = "fixed_allow_list"
	BuildingRuleDynamicAssignment BuildingRuleKind = "dynamic_assignment"
)

// BuildingRule decides building access for one role. The set of implementations is closed.
type BuildingRule interface {
	Kind() BuildingRuleKind
	allows(buildingID string, assigned []string) bool
}

type Unrestricted struct{}

func (Unrestricted) Kind() BuildingRuleKind {
	return BuildingRuleUnrestricted
}

func (Unrestricted) allows(string, []string) bool {
	return true
}

// FixedAllowList grants exactly the buildings it was built with.
type FixedAllowList struct {
	ids map[string]struct{}
}

func NewFixedAllowList(ids ...string) FixedAllowList {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return FixedAllowList{ids: set}
}

func (FixedAllowList) Kind() BuildingRuleKind {
	return BuildingRuleFixedAllowList
}

// IDs returns the allowed building ids sorted.
func (l FixedAllowList) IDs() []string {
	ids := make([]string, 0, len(l.ids))
	for id := range l.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l FixedAllowList) allows(buildingID string, _ []string) bool {
	_, ok := l.ids[buildingID]
	return ok
}

// DynamicAssignment defers to the assignment list supplied on every call.
// A missing or empty list denies.
type DynamicAssignment struct{}

func (DynamicAssignment) Kind() BuildingRuleKind {
	return BuildingRuleDynamicAssignment
}

func (DynamicAssignment) allows(buildingID string, assigned []string) bool {
	for _, id := range assigned {
		if id == buildingID {
			return true
		}
	}
	return false
}

const CitizenBuildingRathausHechingen = "rathaus-hechingen"

func DefaultBuildingRules() map[Role]BuildingRule {
	return map[Role]BuildingRule{
		RoleAdmin:           Unrestricted{},
		RoleManager:         Unrestricted{},
		RoleMayor:           Unrestricted{},
		RoleBuildingManager: DynamicAssignment{},
		RoleUser:            DynamicAssignment{},
		RoleCitizen:         NewFixedAllowList(CitizenBuildingRathausHechingen),
	}
}
