package remediation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
)

// #region fakes
type stubTrigger struct {
	rec   deploy.Record
	calls []deploy.Request
}

func (s *stubTrigger) Deploy(_ context.Context, req deploy.Request) deploy.Record {
	s.calls = append(s.calls, req)
	return s.rec
}

type healRow struct {
	strategy string
	status   deploy.Status
	ms       float64
}

type memLog struct{ rows []healRow }

func (m *memLog) LogHealing(strategy string, status deploy.Status, ms float64) error {
	m.rows = append(m.rows, healRow{strategy, status, ms})
	return nil
}

func newCatalog(rec deploy.Record) (*Catalog, *stubTrigger, *memLog) {
	trig := &stubTrigger{rec: rec}
	log := &memLog{}
	return NewCatalog(trig, log, nil), trig, log
}

// #endregion fakes

func TestExecute_Retry(t *testing.T) {
	c, trig, log := newCatalog(deploy.Record{Status: deploy.StatusSuccess, ResponseTimeMs: 15000})

	res := c.Execute(context.Background(), ActionRetry, Context{DatasetPath: "unused.csv"})
	if res.Outcome != deploy.StatusSuccess || res.ResponseTimeMs != 15000 {
		t.Errorf("got %s/%.0f", res.Outcome, res.ResponseTimeMs)
	}
	if res.HealType != HealRetry {
		t.Errorf("heal type: got %q", res.HealType)
	}
	if len(trig.calls) != 1 || trig.calls[0].ShouldFail {
		t.Errorf("retry must redeploy once without injected failure: %+v", trig.calls)
	}
	if len(log.rows) != 1 || log.rows[0].strategy != "retry_deployment" {
		t.Errorf("healing ledger: %+v", log.rows)
	}
}

func TestExecute_RetryMirrorsFailure(t *testing.T) {
	c, _, _ := newCatalog(deploy.Record{Status: deploy.StatusFailure, ResponseTimeMs: 15000})
	res := c.Execute(context.Background(), ActionRetry, Context{})
	if res.Succeeded() {
		t.Error("retry outcome should mirror the trigger")
	}
}

func TestExecute_RestoreWithoutBackup(t *testing.T) {
	c, trig, log := newCatalog(deploy.Record{Status: deploy.StatusSuccess, ResponseTimeMs: 15000})
	dataset := filepath.Join(t.TempDir(), "student_scores.csv")

	res := c.Execute(context.Background(), ActionRestore, Context{DatasetPath: dataset})
	if res.Outcome != deploy.StatusFailure || res.ResponseTimeMs != 0 {
		t.Errorf("got %s/%.0f, want failure/0", res.Outcome, res.ResponseTimeMs)
	}
	if res.HealType != HealRestore {
		t.Errorf("heal type: got %q", res.HealType)
	}
	if len(trig.calls) != 0 {
		t.Error("no redeploy expected without backup")
	}
	if len(log.rows) != 1 || log.rows[0].status != deploy.StatusFailure {
		t.Errorf("failed restore should still be logged: %+v", log.rows)
	}
}

func TestExecute_RestoreCopiesBackup(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "student_scores.csv")
	if err := os.WriteFile(dataset, []byte("timestamp,score\nx,10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dataset+".bak", []byte("timestamp,score\nx,90\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, trig, _ := newCatalog(deploy.Record{Status: deploy.StatusSuccess, ResponseTimeMs: 15000})
	res := c.Execute(context.Background(), ActionRestore, Context{DatasetPath: dataset})
	if !res.Succeeded() || res.ResponseTimeMs != 15000 {
		t.Errorf("got %s/%.0f", res.Outcome, res.ResponseTimeMs)
	}
	if len(trig.calls) != 1 {
		t.Errorf("expected one redeploy, got %d", len(trig.calls))
	}
	got, err := os.ReadFile(dataset)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "timestamp,score\nx,90\n" {
		t.Errorf("dataset not restored: %q", got)
	}
}

func TestExecute_RestoreExplicitBackupPath(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "data.csv")
	backup := filepath.Join(dir, "snapshot.csv")
	if err := os.WriteFile(backup, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, _, _ := newCatalog(deploy.Record{Status: deploy.StatusSuccess, ResponseTimeMs: 1})
	res := c.Execute(context.Background(), ActionRestore, Context{DatasetPath: dataset, BackupPath: backup})
	if !res.Succeeded() {
		t.Errorf("restore from explicit backup failed: %+v", res)
	}
}

func TestExecute_Adjust(t *testing.T) {
	c, trig, _ := newCatalog(deploy.Record{Status: deploy.StatusFailure})
	res := c.Execute(context.Background(), ActionAdjust, Context{})
	if res.Outcome != deploy.StatusSuccess || res.ResponseTimeMs != 200 || res.HealType != HealAdjust {
		t.Errorf("got %+v", res)
	}
	if len(trig.calls) != 0 {
		t.Error("adjust must not redeploy")
	}
}

func TestExecute_Unknown(t *testing.T) {
	c, _, log := newCatalog(deploy.Record{Status: deploy.StatusSuccess})
	res := c.Execute(context.Background(), Action("reboot_universe"), Context{})
	if res.Outcome != deploy.StatusFailure || res.ResponseTimeMs != 0 || res.HealType != HealUnknown {
		t.Errorf("got %+v", res)
	}
	if len(log.rows) != 1 {
		t.Error("unknown actions are logged too")
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"retry_deployment", ActionRetry, false},
		{" adjust_thresholds ", ActionAdjust, false},
		{"restore_previous_version", ActionRestore, false},
		{"rollback", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAction(%q) = %q, %v", tt.in, got, err)
		}
	}
}
