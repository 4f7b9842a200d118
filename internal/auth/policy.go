package auth

// Action names a capability a view may offer for a resource.
type Action string

const (
	ActionRead            Action = "read"
	ActionEditBuilding    Action = "building.edit"
	ActionDeleteBuilding  Action = "building.delete"
	ActionManageSensors   Action = "sensor.manage"
	ActionResolveIncident Action = "incident.resolve"
	ActionDeleteIncident  Action = "incident.delete"
)

// MutationActions are granted together to the owner of a building or to an admin.
var MutationActions = []Action{
	ActionEditBuilding,
	ActionDeleteBuilding,
	ActionManageSensors,
	ActionResolveIncident,
	ActionDeleteIncident,
}

// Ownership is the owner of the building a resource belongs to. The zero value
// means the owner could not be resolved.
type Ownership struct {
	OwnerID int64
	known   bool
}

// OwnedBy returns a resolved ownership.
func OwnedBy(ownerID int64) Ownership {
	return Ownership{OwnerID: ownerID, known: true}
}

// UnknownOwner is used while the owning building is missing or still loading.
func UnknownOwner() Ownership {
	return Ownership{}
}

// Known reports whether the owning building was resolved.
func (o Ownership) Known() bool { return o.known }

// ActionSet is the set of actions granted to an identity.
type ActionSet map[Action]struct{}

// Has reports whether a is granted.
func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

// CanMutate reports whether any mutation is granted.
func (s ActionSet) CanMutate() bool {
	for _, a := range MutationActions {
		if s.Has(a) {
			return true
		}
	}
	return false
}

// CanEdit reports whether identity may mutate a resource owned by ownerID.
func CanEdit(identity *Identity, ownerID int64) bool {
	if identity == nil {
		return false
	}
	return identity.ID == ownerID || identity.IsAdmin
}

// Allowed maps an identity and the ownership of a resource to the actions it may take.
// Any present identity may read; mutations require CanEdit on a resolved owner.
func Allowed(identity *Identity, owner Ownership) ActionSet {
	set := ActionSet{}
	if identity == nil {
		return set
	}
	set[ActionRead] = struct{}{}
	if !owner.Known() || !CanEdit(identity, owner.OwnerID) {
		return set
	}
	for _, a := range MutationActions {
		set[a] = struct{}{}
	}
	return set
}
