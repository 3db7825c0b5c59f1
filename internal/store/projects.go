package store

import "github.com/existflow/ironsync/internal/model"

// AddProject inserts a project under teamID, or merges into the existing entry
// with the same id.
func (s *Store) AddProject(teamID string, patch model.ProjectPatch) Outcome {
	if teamID != "" {
		patch.TeamID = model.Some(teamID)
	}
	return s.mutate("add_project", func() (Change, string) {
		return s.upsertProject(patch)
	})
}

// UpdateProject merges patch into project id. An unknown id is inserted with
// exactly the patch fields; it joins a team bucket once a team_id is known.
func (s *Store) UpdateProject(id string, patch model.ProjectPatch) Outcome {
	patch.ID = id
	return s.mutate("update_project", func() (Change, string) {
		return s.upsertProject(patch)
	})
}

// RemoveProject deletes a project and its tasks. The id stays tombstoned so a
// late create or update event cannot bring it back.
func (s *Store) RemoveProject(id string) Outcome {
	return s.mutate("remove_project", func() (Change, string) {
		return s.removeProject(id), ""
	})
}

// PutProvisionalProject inserts an optimistic placeholder
func (s *Store) PutProvisionalProject(p model.Project) Outcome {
	return s.mutate("put_provisional_project", func() (Change, string) {
		ch := Change{Entity: EntityProject, ID: p.ID, Parent: p.TeamID}
		if _, taken := s.projects[p.ID]; taken || p.ID == "" {
			ch.Outcome = ConflictIgnored
			return ch, "id in use"
		}
		p.Provisional = true
		p.Pending = false
		s.projects[p.ID] = p
		s.byTeam.add(p.TeamID, p.ID)
		ch.Outcome = Inserted
		return ch, ""
	})
}

// StageProject applies a local edit ahead of confirmation and returns the value
// it replaced. Only confirmed projects can be staged.
func (s *Store) StageProject(patch model.ProjectPatch) (model.Project, Outcome) {
	var prev model.Project
	out := s.mutate("stage_project", func() (Change, string) {
		ch := Change{Entity: EntityProject, ID: patch.ID}
		cur, ok := s.projects[patch.ID]
		if !ok || cur.Provisional {
			ch.Outcome = ConflictIgnored
			return ch, "not confirmed"
		}
		prev = cur
		st, staged := s.stagedProjects[cur.ID]
		if !staged || !cur.Pending {
			st = stagedProject{base: cur}
		}
		st.edit = st.edit.Merge(patch)
		s.stagedProjects[cur.ID] = st

		prevTeam := cur.TeamID
		changed := cur.Apply(patch)
		cur.Pending = true
		s.projects[cur.ID] = cur
		s.byTeam.move(prevTeam, cur.TeamID, cur.ID)
		ch.Parent = cur.TeamID
		if prevTeam != cur.TeamID {
			ch.PrevParent = prevTeam
		}
		ch.Outcome = Merged
		if !changed && prev.Pending {
			ch.Outcome = Unchanged
		}
		return ch, ""
	})
	return prev, out
}

// ConfirmProject swaps the placeholder tmpID for the backend's record in one
// step. If a change event already delivered the record, the two are merged.
func (s *Store) ConfirmProject(tmpID string, patch model.ProjectPatch) Outcome {
	return s.mutate("confirm_project", func() (Change, string) {
		placeholder, had := s.projects[tmpID]
		had = had && placeholder.Provisional
		if had {
			delete(s.projects, tmpID)
			s.byTeam.remove(placeholder.TeamID, tmpID)
		}

		ch, reason := s.upsertProject(patch)
		if !had {
			return ch, reason
		}
		ch.Replaced = tmpID
		switch {
		case patch.ID == "" || s.tombstoned(EntityProject, patch.ID):
			ch.Outcome = Removed
			ch.PrevParent = placeholder.TeamID
		case ch.Outcome == Unchanged || ch.Outcome == ConflictIgnored:
			ch.Outcome = Merged
			ch.Parent = s.projects[patch.ID].TeamID
		}
		return ch, reason
	})
}

// CommitProject is CommitTask for projects
func (s *Store) CommitProject(edit, confirmed model.ProjectPatch) Outcome {
	confirmed.ID = edit.ID
	return s.mutate("commit_project", func() (Change, string) {
		cur, ok := s.projects[edit.ID]
		st, staged := s.stagedProjects[edit.ID]
		if !ok || !cur.Pending || !staged {
			return s.upsertProject(confirmed)
		}

		remaining := st.edit.Without(edit)
		prevTeam := cur.TeamID
		if stale(cur.UpdatedAt, confirmed.UpdatedAt) {
			st.base.Apply(st.edit.Without(remaining))
		} else {
			st.base.Apply(confirmed)
			cur.Apply(confirmed.Without(remaining))
		}
		if remaining.Empty() {
			delete(s.stagedProjects, cur.ID)
			cur.Pending = false
		} else {
			st.edit = remaining
			s.stagedProjects[cur.ID] = st
		}
		s.projects[cur.ID] = cur
		s.byTeam.move(prevTeam, cur.TeamID, cur.ID)

		ch := Change{Entity: EntityProject, ID: cur.ID, Parent: cur.TeamID, Outcome: Merged}
		if prevTeam != cur.TeamID {
			ch.PrevParent = prevTeam
		}
		return ch, ""
	})
}

// RestoreProject rolls the staged edits on prev.ID back to the confirmed
// base. Event values merged since then are kept.
func (s *Store) RestoreProject(prev model.Project) Outcome {
	return s.mutate("restore_project", func() (Change, string) {
		ch := Change{Entity: EntityProject, ID: prev.ID}
		cur, ok := s.projects[prev.ID]
		st, staged := s.stagedProjects[prev.ID]
		if !ok || !cur.Pending || !staged {
			ch.Outcome = Unchanged
			return ch, ""
		}
		delete(s.stagedProjects, prev.ID)
		base := st.base
		base.Pending = false
		base.Provisional = false
		s.projects[base.ID] = base
		s.byTeam.move(cur.TeamID, base.TeamID, base.ID)
		ch.Parent = base.TeamID
		if cur.TeamID != base.TeamID {
			ch.PrevParent = cur.TeamID
		}
		ch.Outcome = Merged
		return ch, ""
	})
}

// DiscardProject removes a placeholder without tombstoning its id
func (s *Store) DiscardProject(tmpID string) Outcome {
	return s.mutate("discard_project", func() (Change, string) {
		ch := Change{Entity: EntityProject, ID: tmpID}
		cur, ok := s.projects[tmpID]
		if !ok || !cur.Provisional {
			ch.Outcome = Unchanged
			return ch, ""
		}
		delete(s.projects, tmpID)
		s.byTeam.remove(cur.TeamID, tmpID)
		for taskID := range s.byProject[tmpID] {
			delete(s.tasks, taskID)
		}
		delete(s.byProject, tmpID)
		ch.PrevParent = cur.TeamID
		ch.Outcome = Removed
		return ch, ""
	})
}

func (s *Store) upsertProject(patch model.ProjectPatch) (Change, string) {
	ch := Change{Entity: EntityProject, ID: patch.ID}
	if patch.ID == "" {
		ch.Outcome = ConflictIgnored
		return ch, "missing id"
	}
	if s.tombstoned(EntityProject, patch.ID) {
		ch.Outcome = ConflictIgnored
		return ch, "deleted"
	}

	cur, exists := s.projects[patch.ID]
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

	prevTeam := cur.TeamID
	changed := cur.Apply(patch)
	if cur.Provisional {
		cur.Provisional = false
		changed = true
	}
	if cur.Pending && s.settleProject(&cur, patch) {
		changed = true
	}
	s.projects[cur.ID] = cur
	s.byTeam.move(prevTeam, cur.TeamID, cur.ID)

	ch.Parent = cur.TeamID
	if exists && prevTeam != cur.TeamID {
		ch.PrevParent = prevTeam
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

func (s *Store) removeProject(id string) Change {
	ch := Change{Entity: EntityProject, ID: id, Outcome: Unchanged}
	if id == "" {
		ch.Outcome = ConflictIgnored
		return ch
	}
	s.tombstones[EntityProject][id] = struct{}{}
	delete(s.stagedProjects, id)

	cur, ok := s.projects[id]
	if !ok {
		return ch
	}
	delete(s.projects, id)
	s.byTeam.remove(cur.TeamID, id)
	for taskID := range s.byProject[id] {
		delete(s.tasks, taskID)
		delete(s.stagedTasks, taskID)
		s.tombstones[EntityTask][taskID] = struct{}{}
	}
	delete(s.byProject, id)

	ch.PrevParent = cur.TeamID
	ch.Outcome = Removed
	return ch
}

func (s *Store) settleProject(p *model.Project, patch model.ProjectPatch) bool {
	if st, ok := s.stagedProjects[p.ID]; ok {
		st.base.Apply(patch)
		st.edit = st.edit.Without(patch)
		if !st.edit.Empty() {
			s.stagedProjects[p.ID] = st
			return false
		}
		delete(s.stagedProjects, p.ID)
	}
	p.Pending = false
	return true
}
