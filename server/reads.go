package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/existflow/ironsync/internal/model"
)

// handleMe returns the session's user and their teams
func (s *Server) handleMe(c echo.Context) error {
	uid := userID(c)
	teams, err := s.repo.Teams(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	if teams == nil {
		teams = []string{}
	}
	return c.JSON(http.StatusOK, model.Identity{UserID: uid, TeamIDs: teams})
}

// handleListProjects returns the projects of ?team_id=
func (s *Server) handleListProjects(c echo.Context) error {
	ctx := c.Request().Context()
	teamID := c.QueryParam("team_id")
	if teamID == "" {
		return badRequest("missing_team", "team_id is required")
	}
	if err := s.requireMember(c, teamID); err != nil {
		return err
	}

	projects, err := s.repo.Projects(ctx, teamID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, projects)
}

// handleListTasks returns the tasks of project :id
func (s *Server) handleListTasks(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := s.repo.Project(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if err := s.requireMember(c, p.TeamID); err != nil {
		return err
	}

	tasks, err := s.repo.Tasks(ctx, p.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

// handleListNotifications returns the caller's notifications, newest first
func (s *Server) handleListNotifications(c echo.Context) error {
	notes, err := s.repo.Notifications(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notes)
}

func (s *Server) requireMember(c echo.Context, teamID string) error {
	ok, err := s.repo.IsMember(c.Request().Context(), userID(c), teamID)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden()
	}
	return nil
}
