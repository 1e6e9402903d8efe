// Package preflight runs an optional reachability scan before a fleet
// dispatch so dead targets fail fast instead of burning connect
// timeouts and retries.
package preflight

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"go.uber.org/zap"

	"remex/internal/domain"
)

// Scanner checks which targets answer on their SSH port
type Scanner struct {
	Timeout time.Duration
	Logger  *zap.Logger

	// run executes the scan; overridden in tests
	run func(ctx context.Context, addresses []string, ports string) (*nmap.Run, error)
}

// NewScanner returns a scanner backed by the nmap binary
func NewScanner(timeout time.Duration, logger *zap.Logger) *Scanner {
	return &Scanner{Timeout: timeout, Logger: logger, run: runNmap}
}

// Check scans every target's SSH port in one nmap run and reports
// reachability per address. A target absent from the scan output is
// reported unreachable, never silently dropped.
func (s *Scanner) Check(ctx context.Context, targets []domain.Target) (map[string]bool, error) {
	reachable := make(map[string]bool, len(targets))
	if len(targets) == 0 {
		return reachable, nil
	}

	addresses := make([]string, 0, len(targets))
	portSet := make(map[int]bool)
	for _, t := range targets {
		reachable[t.Address] = false
		addresses = append(addresses, t.Address)
		port := t.Port
		if port == 0 {
			port = 22
		}
		portSet[port] = true
	}

	ports := make([]string, 0, len(portSet))
	for p := range portSet {
		ports = append(ports, strconv.Itoa(p))
	}

	scanCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	run := s.run
	if run == nil {
		run = runNmap
	}
	result, err := run(scanCtx, addresses, strings.Join(ports, ","))
	if err != nil {
		return nil, fmt.Errorf("preflight scan: %w", err)
	}

	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}
		open := false
		for _, port := range host.Ports {
			if port.State.State == "open" {
				open = true
				break
			}
		}
		if !open {
			continue
		}
		// nmap reports resolved IPs in Addresses; a target addressed by
		// DNS name appears under Hostnames instead
		for _, addr := range host.Addresses {
			if _, known := reachable[addr.Addr]; known {
				reachable[addr.Addr] = true
			}
		}
		for _, hn := range host.Hostnames {
			if _, known := reachable[hn.Name]; known {
				reachable[hn.Name] = true
			}
		}
	}

	up := 0
	for _, ok := range reachable {
		if ok {
			up++
		}
	}
	s.Logger.Info("preflight scan complete",
		zap.Int("targets", len(targets)),
		zap.Int("reachable", up),
	)
	return reachable, nil
}

// Filter partitions targets by scan outcome. Unreachable targets get a
// terminal ConnectError outcome so the dispatch result still covers
// every requested target.
func Filter(targets []domain.Target, reachable map[string]bool) (live []domain.Target, down map[string]domain.TargetOutcome) {
	down = make(map[string]domain.TargetOutcome)
	for _, t := range targets {
		if reachable[t.Address] {
			live = append(live, t)
			continue
		}
		down[t.Addr()] = domain.TargetOutcome{Err: &domain.ConnectError{
			Target: t.Addr(),
			Op:     "preflight",
			Err:    fmt.Errorf("host unreachable"),
		}}
	}
	return live, down
}

func runNmap(ctx context.Context, addresses []string, ports string) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(addresses...),
		nmap.WithPorts(ports),
		nmap.WithSkipHostDiscovery(),
	)
	if err != nil {
		return nil, err
	}
	result, _, err := scanner.Run()
	if err != nil {
		return nil, err
	}
	return result, nil
}
