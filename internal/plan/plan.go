package plan

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Kind selects the built-in behavior of a phase. Most phases invoke agent
// procedures; a few are wired to pipeline internals.
type Kind string

const (
	// KindRemote runs the phase's procedures on every target (default).
	KindRemote Kind = "remote"

	// KindPreflight runs the concurrent connectivity check.
	KindPreflight Kind = "preflight"

	// KindMonitor runs telemetry collection for the monitoring window.
	KindMonitor Kind = "monitor"

	// KindReport renders the run report from state and persisted telemetry.
	KindReport Kind = "report"
)

// DefaultAgentPort is used by targets that do not declare a port.
const DefaultAgentPort = 9099

// Plan is the consolidated, validated benchmark plan.
type Plan struct {
	Solution   string
	ResultsDir string
	Metadata   map[string]string
	Targets    []*Target
	Phases     []*Phase
	Monitor    *Monitor
}

// Target is one remote machine participating in the run.
type Target struct {
	Name string
	Host string
	Port int
}

// Addr returns the target's agent address as host:port.
func (t *Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Phase is one ordered step of the pipeline.
type Phase struct {
	Name       string
	Kind       Kind
	Optional   bool
	Procedures []string
	Args       map[string]string
}

// Monitor describes the telemetry window of the monitoring phase.
type Monitor struct {
	Categories []string
	Interval   time.Duration
	Duration   time.Duration
	Grace      time.Duration
	MaxSamples int
}

// PhaseNames returns the phase names in execution order.
func (p *Plan) PhaseNames() []string {
	names := make([]string, len(p.Phases))
	for i, ph := range p.Phases {
		names[i] = ph.Name
	}
	return names
}

// TargetAddrs returns every target's agent address in declaration order.
func (p *Plan) TargetAddrs() []string {
	addrs := make([]string, len(p.Targets))
	for i, t := range p.Targets {
		addrs[i] = t.Addr()
	}
	return addrs
}

// validate enforces the structural rules a runnable plan must satisfy.
func (p *Plan) validate() error {
	if p.Solution == "" {
		return fmt.Errorf("plan: missing solution block")
	}
	if len(p.Targets) == 0 {
		return fmt.Errorf("plan: at least one target is required")
	}
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan: at least one phase is required")
	}

	seenTargets := make(map[string]bool, len(p.Targets))
	for _, t := range p.Targets {
		if t.Host == "" {
			return fmt.Errorf("plan: target %q has no host", t.Name)
		}
		if seenTargets[t.Name] {
			return fmt.Errorf("plan: duplicate target %q", t.Name)
		}
		seenTargets[t.Name] = true
	}

	seenPhases := make(map[string]bool, len(p.Phases))
	hasMonitor := false
	for _, ph := range p.Phases {
		if seenPhases[ph.Name] {
			return fmt.Errorf("plan: duplicate phase %q", ph.Name)
		}
		seenPhases[ph.Name] = true

		switch ph.Kind {
		case KindRemote, KindPreflight, KindMonitor, KindReport:
		default:
			return fmt.Errorf("plan: phase %q has unknown kind %q", ph.Name, ph.Kind)
		}
		if ph.Kind == KindMonitor {
			hasMonitor = true
		}
	}

	if hasMonitor && p.Monitor == nil {
		return fmt.Errorf("plan: a monitor-kind phase requires a monitor block")
	}
	if p.Monitor != nil {
		if len(p.Monitor.Categories) == 0 {
			return fmt.Errorf("plan: monitor block needs at least one category")
		}
		if p.Monitor.Interval <= 0 {
			return fmt.Errorf("plan: monitor interval must be positive")
		}
	}
	return nil
}
