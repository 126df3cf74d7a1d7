// Package fleet holds the node registry: the set of daemon hosts deckhand
// probes and opens sessions against.
package fleet

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/errors"
)

// Node identifies one remote daemon host.
type Node struct {
	ID     int
	Name   string
	FQDN   string
	Port   int
	Scheme string
	Token  string
}

// BaseURL returns scheme://fqdn:port with any trailing slash on the host removed.
func (n Node) BaseURL() string {
	host := strings.TrimRight(n.FQDN, "/")
	return n.Scheme + "://" + host + ":" + strconv.Itoa(n.Port)
}

// Label is the display name, falling back to the FQDN.
func (n Node) Label() string {
	if n.Name != "" {
		return n.Name
	}
	return n.FQDN
}

// Validate checks the fields needed to reach the node.
func (n Node) Validate() error {
	ref := fmt.Sprintf("nodes[id=%d]", n.ID)
	switch {
	case n.ID <= 0:
		return nodeError(fmt.Sprintf("Node '%s' needs a positive id", n.Label()))
	case n.FQDN == "":
		return nodeError(ref + " is missing fqdn")
	case n.Port < 1 || n.Port > 65535:
		return nodeError(fmt.Sprintf("%s port %d is out of range (1-65535)", ref, n.Port))
	case n.Scheme != "http" && n.Scheme != "https":
		return nodeError(fmt.Sprintf("%s scheme %q must be http or https", ref, n.Scheme))
	}
	return nil
}

func nodeError(msg string) error {
	return errors.New(errors.ErrConfig, msg, "Fix the node entry under 'nodes' in deckhand.yaml.")
}

// Registry provides the set of known nodes. Implementations must return a
// stable order so repeated summaries come out identical.
type Registry interface {
	Nodes(ctx context.Context) ([]Node, error)
}

// StaticRegistry is a fixed node list, sorted by ID.
type StaticRegistry struct {
	nodes []Node
}

// NewStaticRegistry validates the nodes and rejects duplicate IDs.
func NewStaticRegistry(nodes []Node) (*StaticRegistry, error) {
	seen := make(map[int]bool, len(nodes))
	sorted := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return nil, err
		}
		if seen[n.ID] {
			return nil, nodeError(fmt.Sprintf("Node id %d is listed twice", n.ID))
		}
		seen[n.ID] = true
		sorted = append(sorted, n)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &StaticRegistry{nodes: sorted}, nil
}

// FromConfig builds a registry from the nodes section of the config.
// Scheme defaults to https and port to 8080 when omitted.
func FromConfig(cfgs []config.NodeConfig) (*StaticRegistry, error) {
	nodes := make([]Node, 0, len(cfgs))
	for _, c := range cfgs {
		n := Node{ID: c.ID, Name: c.Name, FQDN: c.FQDN, Port: c.Port, Scheme: c.Scheme, Token: c.Token}
		if n.Scheme == "" {
			n.Scheme = "https"
		}
		if n.Port == 0 {
			n.Port = 8080
		}
		nodes = append(nodes, n)
	}
	return NewStaticRegistry(nodes)
}

// Nodes returns a copy of the node list.
func (r *StaticRegistry) Nodes(ctx context.Context) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out, nil
}

// Lookup finds a node by ID.
func (r *StaticRegistry) Lookup(id int) (Node, bool) {
	for _, n := range r.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
