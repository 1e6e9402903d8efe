package preflight

import (
	"context"
	"errors"
	"testing"

	nmap "github.com/Ullaakut/nmap/v3"
	"go.uber.org/zap"

	"remex/internal/domain"
)

func host(addr, state, portState string) nmap.Host {
	return nmap.Host{
		Status:    nmap.Status{State: state},
		Addresses: []nmap.Address{{Addr: addr, AddrType: "ipv4"}},
		Ports: []nmap.Port{
			{ID: 22, State: nmap.State{State: portState}},
		},
	}
}

func TestCheck(t *testing.T) {
	s := &Scanner{
		Logger: zap.NewNop(),
		run: func(ctx context.Context, addresses []string, ports string) (*nmap.Run, error) {
			return &nmap.Run{Hosts: []nmap.Host{
				host("10.0.0.1", "up", "open"),
				host("10.0.0.2", "up", "closed"),
				host("10.0.0.3", "down", "open"),
			}}, nil
		},
	}

	targets := []domain.Target{
		{Address: "10.0.0.1"},
		{Address: "10.0.0.2"},
		{Address: "10.0.0.3"},
		{Address: "10.0.0.4"}, // not in scan output at all
	}
	reachable, err := s.Check(context.Background(), targets)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	want := map[string]bool{
		"10.0.0.1": true,
		"10.0.0.2": false,
		"10.0.0.3": false,
		"10.0.0.4": false,
	}
	for addr, ok := range want {
		if reachable[addr] != ok {
			t.Errorf("reachable[%s] = %v, want %v", addr, reachable[addr], ok)
		}
	}
}

func TestCheckHostnameTarget(t *testing.T) {
	s := &Scanner{
		Logger: zap.NewNop(),
		run: func(ctx context.Context, addresses []string, ports string) (*nmap.Run, error) {
			h := host("93.184.216.34", "up", "open")
			h.Hostnames = []nmap.Hostname{{Name: "web1.example.com", Type: "user"}}
			return &nmap.Run{Hosts: []nmap.Host{h}}, nil
		},
	}

	reachable, err := s.Check(context.Background(), []domain.Target{{Address: "web1.example.com"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !reachable["web1.example.com"] {
		t.Error("up host with open port reported unreachable when addressed by name")
	}
}

func TestCheckScanFailure(t *testing.T) {
	s := &Scanner{
		Logger: zap.NewNop(),
		run: func(ctx context.Context, addresses []string, ports string) (*nmap.Run, error) {
			return nil, errors.New("nmap binary not found")
		},
	}
	if _, err := s.Check(context.Background(), []domain.Target{{Address: "10.0.0.1"}}); err == nil {
		t.Fatal("expected scan error")
	}
}

func TestFilter(t *testing.T) {
	targets := []domain.Target{
		{Address: "10.0.0.1"},
		{Address: "10.0.0.2"},
	}
	live, down := Filter(targets, map[string]bool{"10.0.0.1": true})

	if len(live) != 1 || live[0].Address != "10.0.0.1" {
		t.Errorf("live = %v", live)
	}
	out, ok := down["10.0.0.2:22"]
	if !ok {
		t.Fatal("unreachable target has no outcome")
	}
	var ce *domain.ConnectError
	if !errors.As(out.Err, &ce) {
		t.Errorf("expected ConnectError, got %v", out.Err)
	}
}
