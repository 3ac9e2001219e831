package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessro/rig/internal/daemon"
	"github.com/tessro/rig/internal/envfile"
	"github.com/tessro/rig/internal/history"
	"github.com/tessro/rig/internal/routes"
)

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{"simple", []string{"A=1"}, []string{"A", "1"}, false},
		{"value with equals", []string{"B=x=y"}, []string{"B", "x=y"}, false},
		{"empty value", []string{"C="}, []string{"C", ""}, false},
		{"several", []string{"A=1", "B=2"}, []string{"A", "1", "B", "2"}, false},
		{"missing equals", []string{"A"}, nil, true},
		{"empty key", []string{"=1"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAssignments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("parseAssignments() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintEnv(t *testing.T) {
	var buf bytes.Buffer
	printEnv(&buf, envfile.New("B", "2", "A", "x=y"))
	if got, want := buf.String(), "B=2\nA=x=y\n"; got != want {
		t.Errorf("printEnv() = %q, want %q", got, want)
	}
}

var sampleRoutes = []routes.Route{
	{Name: "Ping", Method: "POST", Endpoint: "/ping", Params: []string{"name"}, Code: "async ping() {}"},
	{Name: "ListItems", Method: "GET", Endpoint: "/items", Description: "Lists items."},
}

func TestRenderRoutes_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := renderRoutes(&buf, "table", "alpha / Ping", sampleRoutes); err != nil {
		t.Fatalf("renderRoutes() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "METHOD") || !strings.Contains(lines[1], "/ping") || !strings.Contains(lines[2], "ListItems") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestRenderRoutes_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := renderRoutes(&buf, "json", "t", sampleRoutes); err != nil {
			t.Fatal(err)
		}
		var got []routes.Route
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if len(got) != 2 || got[0].Endpoint != "/ping" {
			t.Errorf("decoded %+v", got)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := renderRoutes(&buf, "yaml", "t", sampleRoutes); err != nil {
			t.Fatal(err)
		}
		var got []routes.Route
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid yaml: %v", err)
		}
		if len(got) != 2 || got[1].Description != "Lists items." {
			t.Errorf("decoded %+v", got)
		}
	})

	t.Run("md", func(t *testing.T) {
		var buf bytes.Buffer
		if err := renderRoutes(&buf, "md", "alpha / Ping", sampleRoutes); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(buf.String(), "# alpha / Ping") {
			t.Errorf("markdown = %q", buf.String())
		}
	})

	t.Run("html", func(t *testing.T) {
		var buf bytes.Buffer
		if err := renderRoutes(&buf, "html", "alpha", sampleRoutes); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "<table>") {
			t.Errorf("html has no table: %q", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := renderRoutes(&bytes.Buffer{}, "xml", "t", sampleRoutes); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestEventPrinter_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, false)

	p.print(&daemon.StreamEvent{Type: daemon.EventStarted, Project: "alpha", PID: 9})
	p.print(&daemon.StreamEvent{Type: daemon.EventOutput, Project: "alpha", Data: "hel"})
	p.print(&daemon.StreamEvent{Type: daemon.EventOutput, Project: "bravo", Data: "b1\n"})
	p.print(&daemon.StreamEvent{Type: daemon.EventOutput, Project: "alpha", Data: "lo\nwor"})
	code := 2
	p.print(&daemon.StreamEvent{Type: daemon.EventExited, Project: "alpha", PID: 9, ExitCode: &code})

	want := strings.Join([]string{
		"[alpha] started (pid 9)",
		"[bravo] b1",
		"[alpha] hello",
		"[alpha] wor",
		"[alpha] exited with code 2",
	}, "\n") + "\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestEventPrinter_Flush(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, false)
	p.print(&daemon.StreamEvent{Type: daemon.EventOutput, Project: "alpha", Data: "partial"})
	if buf.Len() != 0 {
		t.Fatalf("partial line printed early: %q", buf.String())
	}
	p.flush()
	if got := buf.String(); got != "[alpha] partial\n" {
		t.Errorf("flush() wrote %q", got)
	}
}

func TestPrintProcessTable(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	started := now.Add(-90 * time.Second)
	var buf bytes.Buffer
	printProcessTable(&buf, []daemon.ProcessInfo{
		{Project: "alpha", Status: "running", PID: 42, StartedAt: &started},
		{Project: "bravo", Status: "stopped"},
	}, now)

	out := buf.String()
	for _, want := range []string{"PROJECT", "alpha", "42", "1m30s", "bravo", "stopped"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestPrintRuns(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	code := 0
	var buf bytes.Buffer
	printRuns(&buf, []history.Run{
		{Project: "alpha", PID: 10, StartedAt: start},
		{Project: "alpha", PID: 9, StartedAt: start, EndedAt: &end, ExitCode: &code, Reason: history.ReasonStopped},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "running") {
		t.Errorf("open run row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "1.5s") || !strings.Contains(lines[2], string(history.ReasonStopped)) {
		t.Errorf("closed run row = %q", lines[2])
	}
}
