package team

// Store persists team records. LoadTeam returns an error wrapping
// errors.ErrTeamNotFound for unknown ids.
type Store interface {
	NextTeamNumber() (int, error)
	SaveTeam(t *Team) error
	LoadTeam(id string) (*Team, error)
	ListTeams() ([]*Team, error)
}
