package store

import "github.com/existflow/ironsync/internal/model"

// AddNotification inserts or merges a notification for userID
func (s *Store) AddNotification(userID string, patch model.NotificationPatch) Outcome {
	if userID != "" {
		patch.UserID = model.Some(userID)
	}
	return s.mutate("add_notification", func() (Change, string) {
		return s.upsertNotification(patch)
	})
}

// UpdateNotification merges patch into notification id
func (s *Store) UpdateNotification(id string, patch model.NotificationPatch) Outcome {
	patch.ID = id
	return s.mutate("update_notification", func() (Change, string) {
		return s.upsertNotification(patch)
	})
}

// RemoveNotification deletes a notification and tombstones its id
func (s *Store) RemoveNotification(id string) Outcome {
	return s.mutate("remove_notification", func() (Change, string) {
		ch := Change{Entity: EntityNotification, ID: id, Outcome: Unchanged}
		s.tombstones[EntityNotification][id] = struct{}{}
		delete(s.stagedReads, id)
		cur, ok := s.notifications[id]
		if !ok {
			return ch, ""
		}
		delete(s.notifications, id)
		s.byUser.remove(cur.UserID, id)
		ch.PrevParent = cur.UserID
		ch.Outcome = Removed
		return ch, ""
	})
}

// StageNotificationRead marks id read ahead of confirmation
func (s *Store) StageNotificationRead(id string) Outcome {
	return s.mutate("stage_notification_read", func() (Change, string) {
		ch := Change{Entity: EntityNotification, ID: id}
		cur, ok := s.notifications[id]
		if !ok {
			ch.Outcome = ConflictIgnored
			return ch, "unknown notification"
		}
		if _, staged := s.stagedReads[id]; !staged {
			s.stagedReads[id] = cur.Read
		}
		ch.Parent = cur.UserID
		ch.Outcome = Unchanged
		if !cur.Read {
			cur.Read = true
			s.notifications[id] = cur
			ch.Outcome = Merged
		}
		return ch, ""
	})
}

// RestoreNotificationRead puts back the read flag a failed StageNotificationRead
// replaced. It does nothing once an event has set the flag since.
func (s *Store) RestoreNotificationRead(id string) Outcome {
	return s.mutate("restore_notification_read", func() (Change, string) {
		ch := Change{Entity: EntityNotification, ID: id, Outcome: Unchanged}
		prev, staged := s.stagedReads[id]
		if !staged {
			return ch, ""
		}
		delete(s.stagedReads, id)
		cur, ok := s.notifications[id]
		if !ok || cur.Read == prev {
			return ch, ""
		}
		cur.Read = prev
		s.notifications[id] = cur
		ch.Parent = cur.UserID
		ch.Outcome = Merged
		return ch, ""
	})
}

func (s *Store) upsertNotification(patch model.NotificationPatch) (Change, string) {
	ch := Change{Entity: EntityNotification, ID: patch.ID}
	if patch.ID == "" {
		ch.Outcome = ConflictIgnored
		return ch, "missing id"
	}
	if s.tombstoned(EntityNotification, patch.ID) {
		ch.Outcome = ConflictIgnored
		return ch, "deleted"
	}

	if patch.Read.Set {
		delete(s.stagedReads, patch.ID)
	}

	cur, exists := s.notifications[patch.ID]
	prevUser := cur.UserID
	changed := cur.Apply(patch)
	s.notifications[cur.ID] = cur
	s.byUser.move(prevUser, cur.UserID, cur.ID)

	ch.Parent = cur.UserID
	if exists && prevUser != cur.UserID {
		ch.PrevParent = prevUser
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
