package domain

// Statistic is one player's line in a finished scrim's results
type Statistic struct {
	ID      string `json:"id"`
	ScrimID string `json:"scrimId"`
	UserID  string `json:"userId"`
	MVP     bool   `json:"mvp"`
	Kills   int    `json:"kills"`
	Deaths  int    `json:"deaths"`
	Assists int    `json:"assists"`
	Notes   string `json:"notes,omitempty"`
}

// StatisticRequest is a single uploaded result line. Kills, deaths and
// assists are required; entries missing any of them are skipped.
type StatisticRequest struct {
	UserID  string `json:"userId"`
	MVP     bool   `json:"mvp"`
	Kills   *int   `json:"kills"`
	Deaths  *int   `json:"deaths"`
	Assists *int   `json:"assists"`
	Notes   string `json:"notes,omitempty"`
}

// Complete reports whether every required field is present
func (r *StatisticRequest) Complete() bool {
	return r.UserID != "" && r.Kills != nil && r.Deaths != nil && r.Assists != nil
}
