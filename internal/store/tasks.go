package store

import "github.com/existflow/ironsync/internal/model"

// AddTask inserts a task under projectID, or merges into the existing entry
func (s *Store) AddTask(projectID string, patch model.TaskPatch) Outcome {
	if projectID != "" {
		patch.ProjectID = model.Some(projectID)
	}
	return s.mutate("add_task", func() (Change, string) {
		return s.upsertTask(patch)
	})
}

// UpdateTask merges patch into task id, inserting it when unknown. A changed
// project_id moves the task between buckets in the same critical section.
func (s *Store) UpdateTask(id string, patch model.TaskPatch) Outcome {
	patch.ID = id
	return s.mutate("update_task", func() (Change, string) {
		return s.upsertTask(patch)
	})
}

// RemoveTask deletes a task and tombstones its id
func (s *Store) RemoveTask(id string) Outcome {
	return s.mutate("remove_task", func() (Change, string) {
		ch := Change{Entity: EntityTask, ID: id, Outcome: Unchanged}
		if id == "" {
			ch.Outcome = ConflictIgnored
			return ch, "missing id"
		}
		s.tombstones[EntityTask][id] = struct{}{}
		delete(s.stagedTasks, id)
		cur, ok := s.tasks[id]
		if !ok {
			return ch, ""
		}
		delete(s.tasks, id)
		s.byProject.remove(cur.ProjectID, id)
		ch.PrevParent = cur.ProjectID
		ch.Outcome = Removed
		return ch, ""
	})
}

// PutProvisionalTask inserts an optimistic placeholder task
func (s *Store) PutProvisionalTask(t model.Task) Outcome {
	return s.mutate("put_provisional_task", func() (Change, string) {
		ch := Change{Entity: EntityTask, ID: t.ID, Parent: t.ProjectID}
		if _, taken := s.tasks[t.ID]; taken || t.ID == "" {
			ch.Outcome = ConflictIgnored
			return ch, "id in use"
		}
		t.Provisional = true
		t.Pending = false
		s.tasks[t.ID] = t
		s.byProject.add(t.ProjectID, t.ID)
		ch.Outcome = Inserted
		return ch, ""
	})
}

// StageTask applies a local edit ahead of confirmation and returns the value
// it replaced. Edits staged on top of each other share one confirmed base.
func (s *Store) StageTask(patch model.TaskPatch) (model.Task, Outcome) {
	var prev model.Task
	out := s.mutate("stage_task", func() (Change, string) {
		ch := Change{Entity: EntityTask, ID: patch.ID}
		cur, ok := s.tasks[patch.ID]
		if !ok || cur.Provisional {
			ch.Outcome = ConflictIgnored
			return ch, "not confirmed"
		}
		prev = cur
		st, staged := s.stagedTasks[cur.ID]
		if !staged || !cur.Pending {
			st = stagedTask{base: cur}
		}
		st.edit = st.edit.Merge(patch)
		s.stagedTasks[cur.ID] = st

		prevProject := cur.ProjectID
		changed := cur.Apply(patch)
		cur.Pending = true
		s.tasks[cur.ID] = cur
		s.byProject.move(prevProject, cur.ProjectID, cur.ID)
		ch.Parent = cur.ProjectID
		if prevProject != cur.ProjectID {
			ch.PrevParent = prevProject
		}
		ch.Outcome = Merged
		if !changed && prev.Pending {
			ch.Outcome = Unchanged
		}
		return ch, ""
	})
	return prev, out
}

// ConfirmTask swaps placeholder tmpID for the backend's record
func (s *Store) ConfirmTask(tmpID string, patch model.TaskPatch) Outcome {
	return s.mutate("confirm_task", func() (Change, string) {
		placeholder, had := s.tasks[tmpID]
		had = had && placeholder.Provisional
		if had {
			delete(s.tasks, tmpID)
			s.byProject.remove(placeholder.ProjectID, tmpID)
		}

		ch, reason := s.upsertTask(patch)
		if !had {
			return ch, reason
		}
		ch.Replaced = tmpID
		switch {
		case patch.ID == "" || s.tombstoned(EntityTask, patch.ID) || reason == "project deleted":
			ch.Outcome = Removed
			ch.PrevParent = placeholder.ProjectID
		case ch.Outcome == Unchanged || ch.Outcome == ConflictIgnored:
			ch.Outcome = Merged
			ch.Parent = s.tasks[patch.ID].ProjectID
		}
		return ch, reason
	})
}

// CommitTask settles the staged edit after the backend accepted it. confirmed
// is merged unless a newer event already overtook it; fields of another edit
// still in flight keep their staged values.
func (s *Store) CommitTask(edit, confirmed model.TaskPatch) Outcome {
	confirmed.ID = edit.ID
	return s.mutate("commit_task", func() (Change, string) {
		cur, ok := s.tasks[edit.ID]
		st, staged := s.stagedTasks[edit.ID]
		if !ok || !cur.Pending || !staged {
			return s.upsertTask(confirmed)
		}

		remaining := st.edit.Without(edit)
		prevProject := cur.ProjectID
		if stale(cur.UpdatedAt, confirmed.UpdatedAt) {
			st.base.Apply(st.edit.Without(remaining))
		} else {
			st.base.Apply(confirmed)
			cur.Apply(confirmed.Without(remaining))
		}
		if remaining.Empty() {
			delete(s.stagedTasks, cur.ID)
			cur.Pending = false
		} else {
			st.edit = remaining
			s.stagedTasks[cur.ID] = st
		}
		s.tasks[cur.ID] = cur
		s.byProject.move(prevProject, cur.ProjectID, cur.ID)

		ch := Change{Entity: EntityTask, ID: cur.ID, Parent: cur.ProjectID, Outcome: Merged}
		if prevProject != cur.ProjectID {
			ch.PrevParent = prevProject
		}
		return ch, ""
	})
}

// RestoreTask rolls the staged edits on prev.ID back to the confirmed base.
// Fields that events have overwritten since keep the event's value; once
// events have covered every staged field there is nothing left to undo.
func (s *Store) RestoreTask(prev model.Task) Outcome {
	return s.mutate("restore_task", func() (Change, string) {
		ch := Change{Entity: EntityTask, ID: prev.ID}
		cur, ok := s.tasks[prev.ID]
		st, staged := s.stagedTasks[prev.ID]
		if !ok || !cur.Pending || !staged {
			ch.Outcome = Unchanged
			return ch, ""
		}
		delete(s.stagedTasks, prev.ID)
		base := st.base
		base.Pending = false
		base.Provisional = false
		s.tasks[base.ID] = base
		s.byProject.move(cur.ProjectID, base.ProjectID, base.ID)
		ch.Parent = base.ProjectID
		if cur.ProjectID != base.ProjectID {
			ch.PrevParent = cur.ProjectID
		}
		ch.Outcome = Merged
		return ch, ""
	})
}

// DiscardTask removes a placeholder task without tombstoning its id
func (s *Store) DiscardTask(tmpID string) Outcome {
	return s.mutate("discard_task", func() (Change, string) {
		ch := Change{Entity: EntityTask, ID: tmpID}
		cur, ok := s.tasks[tmpID]
		if !ok || !cur.Provisional {
			ch.Outcome = Unchanged
			return ch, ""
		}
		delete(s.tasks, tmpID)
		s.byProject.remove(cur.ProjectID, tmpID)
		ch.PrevParent = cur.ProjectID
		ch.Outcome = Removed
		return ch, ""
	})
}

func (s *Store) upsertTask(patch model.TaskPatch) (Change, string) {
	ch := Change{Entity: EntityTask, ID: patch.ID}
	if patch.ID == "" {
		ch.Outcome = ConflictIgnored
		return ch, "missing id"
	}
	if s.tombstoned(EntityTask, patch.ID) {
		ch.Outcome = ConflictIgnored
		return ch, "deleted"
	}
	if pid, ok := patch.ProjectID.Get(); ok && s.tombstoned(EntityProject, pid) {
		ch.Outcome = ConflictIgnored
		return ch, "project deleted"
	}

	cur, exists := s.tasks[patch.ID]
	if exists {
		if stale(cur.UpdatedAt, patch.UpdatedAt) {
			ch.Outcome = ConflictIgnored
			return ch, "stale"
		}
		if cur.Pending && patch.UpdatedAt.Set && !patch.UpdatedAt.Value.After(cur.UpdatedAt) {
			ch.Outcome = ConflictIgnored
			return ch, "older than pending edit"
		}
	}

	prevProject := cur.ProjectID
	changed := cur.Apply(patch)
	if cur.Provisional {
		cur.Provisional = false
		changed = true
	}
	if cur.Pending && s.settleTask(&cur, patch) {
		changed = true
	}
	s.tasks[cur.ID] = cur
	s.byProject.move(prevProject, cur.ProjectID, cur.ID)

	ch.Parent = cur.ProjectID
	if exists && prevProject != cur.ProjectID {
		ch.PrevParent = prevProject
	}
	switch {
	case !exists:
		ch.Outcome = Inserted
	case changed:
		ch.Outcome = Merged
	default:
		ch.Outcome = Unchanged
	}
	return ch, ""
}

// settleTask folds an accepted patch into the staged base of t. Pending clears
// only once patches have covered every staged field; it reports whether it did.
func (s *Store) settleTask(t *model.Task, patch model.TaskPatch) bool {
	if st, ok := s.stagedTasks[t.ID]; ok {
		st.base.Apply(patch)
		st.edit = st.edit.Without(patch)
		if !st.edit.Empty() {
			s.stagedTasks[t.ID] = st
			return false
		}
		delete(s.stagedTasks, t.ID)
	}
	t.Pending = false
	return true
}
