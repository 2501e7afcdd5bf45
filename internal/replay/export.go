package replay

import (
	"fmt"
	"sort"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/history"
)

// #region export

// FromHistory builds a fixture from recorded incidents, given newest first as
// history.Store.RecentIncidents returns them. Incidents are replayed oldest first,
// and the expected actions are the greedy actions after replaying them, so the
// fixture pins the current behaviour as a regression baseline.
func FromHistory(description string, newestFirst []history.Incident, cfg FixtureConfig) (*Fixture, error) {
	f := &Fixture{Description: description, Config: cfg}
	seen := map[string]bool{}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		in := newestFirst[i]
		f.Incidents = append(f.Incidents, FixtureIncident{
			State:    in.State,
			Action:   in.Action,
			Outcome:  in.Outcome,
			Feedback: in.FeedbackValue,
		})
		seen[in.State] = true
	}
	if len(f.Incidents) == 0 {
		return nil, fmt.Errorf("no incidents to export")
	}

	res, err := f.Run()
	if err != nil {
		return nil, fmt.Errorf("replay exported incidents: %w", err)
	}
	states := make([]string, 0, len(seen))
	for s := range seen {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		f.Expected = append(f.Expected, FixtureExpected{State: s, Action: string(res.Best[s])})
	}
	return f, nil
}

// #endregion export
