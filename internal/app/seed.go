package app

import (
	"context"
	"errors"

	"siteplan/internal/domain"
	"siteplan/internal/engine"
	"siteplan/internal/repo"
)

type seedUser struct {
	Username, Password string
	Role               domain.Role
}

// DemoUsers are the accounts created by `siteplan seed`.
var DemoUsers = []seedUser{
	{"cm_user", "pass123", domain.RoleConstructionManager},
	{"manager1", "managerpass1", domain.RoleConstructionManager},
	{"viewer1", "viewerpass1", domain.RoleViewer},
}

// DemoArtisans are the artisans created by `siteplan seed`.
var DemoArtisans = []engine.ArtisanInput{
	{Name: "John Smith", Skill: "Carpenter", Availability: string(domain.FullTime)},
	{Name: "Aisha Khan", Skill: "Electrician", Availability: string(domain.PartTime)},
	{Name: "Thabo Mokoena", Skill: "Plumber", Availability: string(domain.FullTime)},
	{Name: "Sarah Jones", Skill: "Painter", Availability: string(domain.OnCall)},
	{Name: "Michael Brown", Skill: "Mason", Availability: string(domain.FullTime)},
}

type SeedResult struct {
	Users    []string `json:"users"`
	Artisans []string `json:"artisans"`
	Skipped  int      `json:"skipped"`
}

// Seed inserts the demo data. Records that already exist are skipped, so
// running it twice is harmless.
func Seed(ctx context.Context, eng engine.Engine, actor domain.User) (SeedResult, error) {
	res := SeedResult{Users: []string{}, Artisans: []string{}}
	for _, u := range DemoUsers {
		_, err := eng.CreateUser(ctx, actor, u.Username, u.Password, string(u.Role))
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			res.Skipped++
		case err != nil:
			return res, err
		default:
			res.Users = append(res.Users, u.Username)
		}
	}
	for _, in := range DemoArtisans {
		a, err := eng.CreateArtisan(ctx, actor, in)
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			res.Skipped++
		case err != nil:
			return res, err
		default:
			res.Artisans = append(res.Artisans, a.ID)
		}
	}
	return res, nil
}
