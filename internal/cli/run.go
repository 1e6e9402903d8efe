package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"remex/internal/config"
	"remex/internal/dispatch"
	"remex/internal/domain"
	"remex/internal/events"
	"remex/internal/fleet"
	"remex/internal/gate"
	"remex/internal/payload"
	"remex/internal/preflight"
	"remex/internal/stage"
	"remex/internal/transport"
	"remex/internal/trust"
)

var (
	runTargets   []string
	runOverride  []string
	runFormat    string
	runPreflight bool
	runProgress  bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVarP(&runTargets, "target", "t", nil, "Restrict to these roster addresses (default: all)")
	runCmd.Flags().StringSliceVar(&runOverride, "trust-override", nil, "Addresses whose changed host key may be re-recorded, this invocation only")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "json", "Output format (json|yaml)")
	runCmd.Flags().BoolVar(&runPreflight, "preflight", false, "Scan target reachability before dispatch")
	runCmd.Flags().BoolVar(&runProgress, "progress", false, "Print per-target progress to stderr")
}

var runCmd = &cobra.Command{
	Use:   "run <routine> [arg ...] [key=value ...]",
	Short: "Run one routine across the target fleet",
	Long: "Authorizes the call, stages the verified runtime on each target,\n" +
		"executes the routine, and prints one outcome per target.\n\n" +
		"Exit code 0 if every target succeeded, 1 otherwise.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	cfg := app.cfg

	call := parseCall(args, cfg.Identity)
	targets := selectTargets(cfg.TargetList(), runTargets)
	if len(targets) == 0 {
		return fmt.Errorf("no targets selected")
	}

	outcomes := make(map[string]domain.TargetOutcome)
	if runPreflight || cfg.Preflight.Enabled {
		scanner := preflight.NewScanner(cfg.Fleet.ConnectTimeout, app.logger)
		reachable, err := scanner.Check(ctx, targets)
		if err != nil {
			return err
		}
		var down map[string]domain.TargetOutcome
		targets, down = preflight.Filter(targets, reachable)
		for addr, out := range down {
			outcomes[addr] = out
		}
	}

	bus := events.NewBus()
	app.trust.OnAccept = func(address, fingerprint string) {
		bus.Publish(events.Event{Type: events.EventTrustAccepted, Target: address, Detail: fingerprint})
	}
	if runProgress {
		ch := make(chan events.Event, 256)
		bus.Subscribe(ch)
		go func() {
			for ev := range ch {
				fmt.Fprintf(os.Stderr, "%-12s %s %s\n", ev.Type, ev.Target, ev.Detail)
			}
		}()
	}

	coordinator := &fleet.Coordinator{
		Opener: fleet.TransportOpener{Dialer: &transport.Dialer{
			Trust:          app.trust,
			Policy:         trust.Policy(cfg.Trust.Policy),
			ConnectTimeout: cfg.Fleet.ConnectTimeout,
			CommandTimeout: cfg.Fleet.CommandTimeout,
			Logger:         app.logger,
		}},
		Gate:        gate.New(buildAuthorizer(cfg), app.logger),
		Builder:     payload.NewBuilder(cfg.Payload.Version, app.repo, app.logger),
		Stager:      &stage.Stager{Logger: app.logger},
		Dispatcher:  &dispatch.Dispatcher{Logger: app.logger},
		Credentials: cfg,
		Bus:         bus,
		Concurrency: cfg.Fleet.Concurrency,
		Retries:     cfg.Fleet.Retries,
		Logger:      app.logger,
	}

	override := make(map[string]bool, len(runOverride))
	for _, t := range targets {
		for _, addr := range runOverride {
			if t.Address == addr || t.Addr() == addr {
				override[t.Addr()] = true
			}
		}
	}

	if len(targets) > 0 {
		for addr, out := range coordinator.Dispatch(ctx, fleet.Request{
			Targets:       targets,
			Call:          call,
			TrustOverride: override,
		}) {
			outcomes[addr] = out
		}
	}

	if err := renderOutcomes(cmd, outcomes, runFormat); err != nil {
		return err
	}

	failed := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(outcomes))
	}
	return nil
}

// parseCall builds the routine call from command arguments. Arguments
// of the form key=value with an identifier key become named arguments;
// everything else stays positional and verbatim.
func parseCall(args []string, identity string) *domain.RoutineCall {
	call := &domain.RoutineCall{Name: args[0], Caller: identity}
	for _, arg := range args[1:] {
		if key, val, ok := splitNamedArg(arg); ok {
			if call.Kwargs == nil {
				call.Kwargs = make(map[string]domain.Value)
			}
			call.Kwargs[key] = domain.Lit(val)
			continue
		}
		call.Args = append(call.Args, domain.Lit(arg))
	}
	return call
}

func splitNamedArg(s string) (string, string, bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return "", "", false
	}
	key := s[:i]
	for _, r := range key {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", "", false
		}
	}
	return key, s[i+1:], true
}

func selectTargets(roster []domain.Target, wanted []string) []domain.Target {
	if len(wanted) == 0 {
		return roster
	}
	keep := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		keep[w] = true
	}
	var out []domain.Target
	for _, t := range roster {
		if keep[t.Address] || keep[t.Addr()] {
			out = append(out, t)
		}
	}
	return out
}

func buildAuthorizer(cfg *config.Config) gate.Authorizer {
	allow := make(map[string][]gate.Rule, len(cfg.ACL.Allow))
	for id, rules := range cfg.ACL.Allow {
		for _, r := range rules {
			allow[id] = append(allow[id], gate.Rule{Routine: r.Routine, Args: r.Args})
		}
	}
	return &gate.TableAuthorizer{
		Strategy: gate.MatchStrategy(cfg.ACL.Strategy),
		Allow:    allow,
	}
}

// outcomeView is the serialized per-target outcome
type outcomeView struct {
	Target     string `json:"target" yaml:"target"`
	Return     any    `json:"return,omitempty" yaml:"return,omitempty"`
	ExitStatus int    `json:"exit_status" yaml:"exit_status"`
	Raw        string `json:"raw,omitempty" yaml:"raw,omitempty"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

func renderOutcomes(cmd *cobra.Command, outcomes map[string]domain.TargetOutcome, format string) error {
	addrs := make([]string, 0, len(outcomes))
	for addr := range outcomes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	views := make([]outcomeView, 0, len(addrs))
	for _, addr := range addrs {
		out := outcomes[addr]
		view := outcomeView{Target: addr, Error: out.ErrString()}
		if out.Result != nil {
			view.Return = out.Result.Return
			view.ExitStatus = out.Result.ExitStatus
			view.Raw = out.Result.Raw
		}
		views = append(views, view)
	}

	switch format {
	case "yaml":
		data, err := yaml.Marshal(views)
		if err != nil {
			return err
		}
		cmd.Print(string(data))
	case "json", "":
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}
