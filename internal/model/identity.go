package model

// Identity is what the authentication boundary tells the client about the
// current session. Login itself happens elsewhere.
type Identity struct {
	UserID  string   `json:"user_id"`
	TeamIDs []string `json:"team_ids"`
}

// MemberOf reports whether the user belongs to teamID
func (i Identity) MemberOf(teamID string) bool {
	for _, id := range i.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}
