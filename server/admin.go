package server

import (
	"context"
	"time"
)

// Admin bootstraps users, teams and session tokens. Sign-in flows live outside
// this server; operators hand out tokens with these calls.
type Admin struct {
	repo *pgRepo
}

// EnsureUser returns the user with email and the id of their team named team,
// creating either when missing
func (a *Admin) EnsureUser(ctx context.Context, email, team string) (userID, teamID string, err error) {
	return a.repo.EnsureUser(ctx, email, team)
}

// AddMember adds userID to teamID
func (a *Admin) AddMember(ctx context.Context, teamID, userID string) error {
	return a.repo.AddMember(ctx, teamID, userID)
}

// IssueToken creates a session token for userID
func (a *Admin) IssueToken(ctx context.Context, userID string, ttl time.Duration) (string, time.Time, error) {
	return a.repo.IssueToken(ctx, userID, ttl)
}
