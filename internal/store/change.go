package store

import "github.com/existflow/ironsync/internal/model"

// Outcome is the result of one store mutation
type Outcome int

const (
	// Unchanged means the mutation was valid but produced no difference
	Unchanged Outcome = iota
	Inserted
	Merged
	Removed
	// ConflictIgnored is a deliberate no-op: the input was stale, referenced a
	// deleted entity, or lacked what was needed to apply it. Logged, never fatal.
	ConflictIgnored
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	case Removed:
		return "removed"
	case ConflictIgnored:
		return "conflict_ignored"
	default:
		return "unknown"
	}
}

// Entity names the collection a change touched
type Entity string

const (
	EntityProject      Entity = model.TableProjects
	EntityTask         Entity = model.TableTasks
	EntityNotification Entity = model.TableNotifications
	// EntityAll marks a bulk change such as seeding from a snapshot
	EntityAll Entity = "*"
)

// Change is delivered to subscribers after a state-changing mutation
type Change struct {
	Entity  Entity
	ID      string
	Outcome Outcome

	// Parent is the bucket key the entity now lives under (team, project or user).
	// PrevParent is set when the entity left a bucket, by move or removal.
	Parent     string
	PrevParent string

	// Replaced is the placeholder id a confirmation superseded
	Replaced string
}

func (c Change) visible() bool {
	return c.Outcome != Unchanged && c.Outcome != ConflictIgnored
}

// Snapshot is the confirmed portion of the store
type Snapshot struct {
	Projects      []model.Project      `json:"projects"`
	Tasks         []model.Task         `json:"tasks"`
	Notifications []model.Notification `json:"notifications"`
}

// index maps a parent key to the set of child ids under it
type index map[string]map[string]struct{}

func (ix index) add(parent, id string) {
	if parent == "" {
		return
	}
	set, ok := ix[parent]
	if !ok {
		set = make(map[string]struct{})
		ix[parent] = set
	}
	set[id] = struct{}{}
}

func (ix index) remove(parent, id string) {
	set, ok := ix[parent]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix, parent)
	}
}

func (ix index) move(from, to, id string) {
	if from == to {
		ix.add(to, id)
		return
	}
	ix.remove(from, id)
	ix.add(to, id)
}
