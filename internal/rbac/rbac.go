// Package rbac is the access gate: a stateless predicate deciding whether a
// role may perform an action. It is evaluated by the route table before any
// store mutation runs.
package rbac

type Role string
type Action string

const (
	RoleRegularUser    Role = "RegularUser"
	RoleContentCreator Role = "ContentCreator"
)

const (
	ActionRead   Action = "read"
	ActionPost   Action = "post"
	ActionShare  Action = "share"
	ActionFollow Action = "follow"
	ActionTrack  Action = "track"
	ActionCurate Action = "curate"
)

// Can reports whether role is allowed to perform action. Sharing, following,
// tracker mutation, and collection curation are reserved for regular users;
// content creators keep read and authoring access only.
func Can(role Role, action Action) bool {
	switch role {
	case RoleRegularUser:
		return true
	case RoleContentCreator:
		return action == ActionRead || action == ActionPost
	default:
		return false
	}
}

// Valid reports whether role is one of the two recognized roles. Roles are
// assigned at signup and never change.
func Valid(role Role) bool {
	return role == RoleRegularUser || role == RoleContentCreator
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleRegularUser, RoleContentCreator:
		return Role(role)
	default:
		return RoleRegularUser
	}
}
