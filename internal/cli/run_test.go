package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"

	"remex/internal/domain"
)

func TestParseCall(t *testing.T) {
	call := parseCall([]string{"pkg.install", "nginx", "refresh=true", "not=a=key works", "--flag"}, "ops")

	if call.Name != "pkg.install" || call.Caller != "ops" {
		t.Errorf("call = %s by %s", call.Name, call.Caller)
	}
	if len(call.Args) != 2 {
		t.Fatalf("args = %v", call.Args)
	}
	if call.Args[0].Literal != "nginx" || call.Args[1].Literal != "--flag" {
		t.Errorf("positional args = %v", call.Args)
	}
	if call.Kwargs["refresh"].Literal != "true" {
		t.Errorf("kwargs = %v", call.Kwargs)
	}
	// "not=a=key works" has an identifier key and everything after the
	// first '=' verbatim, spaces included
	if call.Kwargs["not"].Literal != "a=key works" {
		t.Errorf("kwargs = %v", call.Kwargs)
	}
}

func TestSelectTargets(t *testing.T) {
	roster := []domain.Target{
		{Address: "10.0.0.1"},
		{Address: "10.0.0.2", Port: 2222},
	}

	if got := selectTargets(roster, nil); len(got) != 2 {
		t.Errorf("default selection = %v", got)
	}
	if got := selectTargets(roster, []string{"10.0.0.2"}); len(got) != 1 || got[0].Port != 2222 {
		t.Errorf("by address = %v", got)
	}
	if got := selectTargets(roster, []string{"10.0.0.2:2222"}); len(got) != 1 {
		t.Errorf("by host:port = %v", got)
	}
	if got := selectTargets(roster, []string{"10.9.9.9"}); len(got) != 0 {
		t.Errorf("unknown address matched: %v", got)
	}
}

func TestRenderOutcomes(t *testing.T) {
	outcomes := map[string]domain.TargetOutcome{
		"10.0.0.2:22": {Err: &domain.ConnectError{Target: "10.0.0.2:22", Op: "dial"}},
		"10.0.0.1:22": {Result: &domain.SessionResult{Target: "10.0.0.1:22", Return: "pong"}},
	}

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	if err := renderOutcomes(cmd, outcomes, "json"); err != nil {
		t.Fatalf("renderOutcomes: %v", err)
	}

	var views []outcomeView
	if err := json.Unmarshal(buf.Bytes(), &views); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d", len(views))
	}
	// sorted by address
	if views[0].Target != "10.0.0.1:22" || views[0].Return != "pong" {
		t.Errorf("first view = %+v", views[0])
	}
	if views[1].Error == "" {
		t.Errorf("failed target rendered without error: %+v", views[1])
	}

	if err := renderOutcomes(cmd, outcomes, "csv"); err == nil {
		t.Error("unknown format accepted")
	}
}
