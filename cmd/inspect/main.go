package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/history"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/policy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
)

// #region main

func main() {
	qPath := flag.String("qtable", "logs/rl_log.csv", "path to the Q-table CSV")
	dbPath := flag.String("db", "", "path to the audit history DB (optional)")
	last := flag.Int("last", 10, "show N most recent incidents")
	stateFilter := flag.String("state", "", "only show rows for this state key prefix")
	jsonOut := flag.Bool("json", false, "output as JSON instead of tables")
	flag.Parse()

	out, err := collect(*qPath, *dbPath, *last, *stateFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *jsonOut {
		if err := printJSON(out); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Print(render(out))
}

// #endregion main

// #region collect

type qRow struct {
	State  string             `json:"state"`
	Values map[string]float64 `json:"values"`
	Best   string             `json:"best"`
}

type incidentRow struct {
	CreatedAt string   `json:"created_at"`
	Phase     string   `json:"phase"`
	State     string   `json:"state"`
	Action    string   `json:"action"`
	Selection string   `json:"selection"`
	Outcome   string   `json:"outcome"`
	Reward    *float64 `json:"reward,omitempty"`
	Feedback  string   `json:"feedback,omitempty"`
}

type output struct {
	QTable    []qRow               `json:"qtable"`
	Incidents []incidentRow        `json:"incidents,omitempty"`
	Stats     []history.ActionStat `json:"stats,omitempty"`
	Warning   string               `json:"warning,omitempty"`
}

func collect(qPath, dbPath string, last int, stateFilter string) (*output, error) {
	out := &output{}
	tbl, err := policy.LoadQTable(qPath, failure.Keys(), remediation.Actions)
	if err != nil {
		out.Warning = err.Error()
	}
	for _, s := range tbl.States() {
		if !strings.HasPrefix(s, stateFilter) {
			continue
		}
		row := qRow{State: s, Values: map[string]float64{}, Best: string(tbl.Best(s))}
		for _, a := range tbl.Actions() {
			row.Values[string(a)] = tbl.Get(s, a)
		}
		out.QTable = append(out.QTable, row)
	}

	if dbPath == "" {
		return out, nil
	}
	ctx := context.Background()
	store, err := history.NewStore(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	incs, err := store.RecentIncidents(ctx, last)
	if err != nil {
		return nil, err
	}
	for _, in := range incs {
		if !strings.HasPrefix(in.State, stateFilter) {
			continue
		}
		out.Incidents = append(out.Incidents, incidentRow{
			CreatedAt: in.CreatedAt.Format("2006-01-02T15:04:05Z"),
			Phase:     in.Phase,
			State:     in.State,
			Action:    in.Action,
			Selection: in.Selection,
			Outcome:   in.Outcome,
			Reward:    in.Reward,
			Feedback:  in.FeedbackValue,
		})
	}

	stats, err := store.ActionStats(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range stats {
		if strings.HasPrefix(st.State, stateFilter) {
			out.Stats = append(out.Stats, st)
		}
	}
	return out, nil
}

// #endregion collect

// #region render

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	bestStyle   = cellStyle.Foreground(lipgloss.Color("#10B981")).Bold(true)
	badStyle    = cellStyle.Foreground(lipgloss.Color("#EF4444"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

func render(out *output) string {
	var b strings.Builder
	if out.Warning != "" {
		b.WriteString(mutedStyle.Render("warning: "+out.Warning) + "\n")
	}

	b.WriteString(titleStyle.Render("Q-table") + "\n")
	headers := []string{"state"}
	for _, a := range remediation.Actions {
		headers = append(headers, string(a))
	}
	rows := make([][]string, 0, len(out.QTable))
	bestCol := make([]int, 0, len(out.QTable))
	for _, r := range out.QTable {
		row := []string{r.State}
		best := 0
		for i, a := range remediation.Actions {
			row = append(row, fmt.Sprintf("%.4f", r.Values[string(a)]))
			if string(a) == r.Best && r.Values[string(a)] != 0 {
				best = i + 1
			}
		}
		rows = append(rows, row)
		bestCol = append(bestCol, best)
	}
	qt := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col > 0 && col == bestCol[row]:
				return bestStyle
			}
			return cellStyle
		})
	b.WriteString(qt.Render() + "\n")

	if len(out.Incidents) > 0 {
		b.WriteString(titleStyle.Render("Recent incidents") + "\n")
		rows := make([][]string, 0, len(out.Incidents))
		for _, in := range out.Incidents {
			reward := "-"
			if in.Reward != nil {
				reward = fmt.Sprintf("%+g", *in.Reward)
			}
			rows = append(rows, []string{in.CreatedAt, in.Phase, in.State, in.Action, in.Selection, in.Outcome, reward, in.Feedback})
		}
		it := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(mutedStyle).
			Headers("time", "phase", "state", "action", "selection", "outcome", "reward", "feedback").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 5 && rows[row][5] == "failure" {
					return badStyle
				}
				return cellStyle
			})
		b.WriteString(it.Render() + "\n")
	}

	if len(out.Stats) > 0 {
		b.WriteString(titleStyle.Render("Action statistics") + "\n")
		rows := make([][]string, 0, len(out.Stats))
		for _, st := range out.Stats {
			rows = append(rows, []string{
				st.State,
				st.Action,
				fmt.Sprintf("%d", st.Count),
				fmt.Sprintf("%.0f%%", st.SuccessRate*100),
				fmt.Sprintf("%+.2f", st.MeanReward),
			})
		}
		st := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(mutedStyle).
			Headers("state", "action", "n", "success", "mean reward").
			Rows(rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		b.WriteString(st.Render() + "\n")
	}
	return b.String()
}

// #endregion render

// #region helpers

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
