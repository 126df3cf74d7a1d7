package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/probe"
)

// NodeCheck probes one node's utilization endpoint.
type NodeCheck struct {
	Node    fleet.Node
	Prober  probe.Prober
	Timeout time.Duration
}

func (c *NodeCheck) Name() string     { return "node_" + c.Node.Label() }
func (c *NodeCheck) Category() string { return "NODES" }

func (c *NodeCheck) Run(ctx context.Context) CheckResult {
	start := time.Now()
	_, err := c.Prober.Probe(ctx, c.Node, c.Timeout)
	if err != nil {
		reason := probe.ReasonOf(err)
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s (%s): %s", c.Node.Label(), c.Node.BaseURL(), reason.Describe()),
			Suggestion: nodeSuggestion(reason),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable in %s", c.Node.Label(), time.Since(start).Round(time.Millisecond)),
	}
}

func nodeSuggestion(r probe.Reason) string {
	switch r {
	case probe.ReasonTimeout:
		return "Raise probe.timeout or check network latency to the node"
	case probe.ReasonRefused, probe.ReasonUnreachable:
		return "Check the node's fqdn, port and scheme, and that the daemon is running"
	case probe.ReasonHTTPStatus:
		return "Check the node token; the daemon rejected the request"
	case probe.ReasonEmpty, probe.ReasonMalformed:
		return "The daemon answered but reported no usable utilization; check its version"
	default:
		return ""
	}
}

// NodeChecks builds one check per node.
func NodeChecks(nodes []fleet.Node, p probe.Prober, timeout time.Duration) []Check {
	checks := make([]Check, 0, len(nodes))
	for _, n := range nodes {
		checks = append(checks, &NodeCheck{Node: n, Prober: p, Timeout: timeout})
	}
	return checks
}

// FleetCheck warns when no nodes are configured.
type FleetCheck struct {
	Nodes []fleet.Node
}

func (c *FleetCheck) Name() string     { return "fleet" }
func (c *FleetCheck) Category() string { return "NODES" }

func (c *FleetCheck) Run(ctx context.Context) CheckResult {
	if len(c.Nodes) == 0 {
		return CheckResult{
			Status:     StatusWarn,
			Message:    "No nodes configured",
			Suggestion: "Add daemon hosts under 'nodes' in deckhand.yaml",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d node%s configured", len(c.Nodes), pluralize(len(c.Nodes))),
	}
}
