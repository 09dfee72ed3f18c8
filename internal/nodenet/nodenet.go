// Package nodenet implements the nodenet engine: a typed hierarchical graph
// of nodes whose gates feed weighted links into slots, advanced one step at
// a time by propagating activation and running node functions.
//
// A Nodenet serializes every mutation through a single mutex. Node
// functions receive a *NetAPI that operates on the locked state directly;
// external callers use the Nodenet methods or Do.
package nodenet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nvandessel/nodenet/internal/gatefunc"
	"github.com/nvandessel/nodenet/internal/logging"
	"github.com/nvandessel/nodenet/internal/nodetype"
)

// DefaultLockTimeout is the number of steps a lock lives when no timeout is given.
const DefaultLockTimeout = 100

// Options configure a new Nodenet. Zero values select defaults.
type Options struct {
	UID  string
	Name string

	// Registry holds the node types. Defaults to the standard types only.
	Registry *nodetype.Registry
	// Functions holds named node functions. Defaults to the standard ones.
	Functions *FunctionLibrary
	World     WorldAdapter
	Logger    *slog.Logger

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider

	// DefaultLockTimeout applies to locks acquired without a timeout.
	DefaultLockTimeout int
}

// Nodenet is one independently stepped graph.
type Nodenet struct {
	mu sync.Mutex

	uid    string
	name   string
	g      *graph
	world  WorldAdapter
	active atomic.Bool

	locks          map[string]*heldLock
	pendingUnlocks []pendingUnlock
	lockTimeout    int

	prompt *UserPrompt

	registry *nodetype.Registry
	library  *FunctionLibrary
	logger   *slog.Logger
	inst     *instruments
	api      *NetAPI
}

// New creates a nodenet holding only the Root nodespace. It fails when a
// registered nodetype refers to an unknown node function.
func New(opts Options) (*Nodenet, error) {
	if opts.UID == "" {
		opts.UID = newUID()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = nodetype.NewRegistry(opts.Logger)
	}
	if opts.Functions == nil {
		opts.Functions = NewFunctionLibrary()
	}
	if opts.DefaultLockTimeout <= 0 {
		opts.DefaultLockTimeout = DefaultLockTimeout
	}
	inst, err := newInstruments(opts.MeterProvider, opts.TracerProvider)
	if err != nil {
		return nil, err
	}

	n := &Nodenet{
		uid:         opts.UID,
		name:        opts.Name,
		world:       opts.World,
		locks:       make(map[string]*heldLock),
		lockTimeout: opts.DefaultLockTimeout,
		registry:    opts.Registry,
		library:     opts.Functions,
		logger:      opts.Logger.With("nodenet", opts.UID),
		inst:        inst,
	}
	n.api = &NetAPI{net: n}
	n.g = newGraph(n.registry, n.library, n.logger)
	if err := n.resolveAll(n.g); err != nil {
		return nil, err
	}
	return n, nil
}

// resolveAll binds every registered nodetype to its node function.
func (n *Nodenet) resolveAll(g *graph) error {
	for _, name := range n.registry.Names() {
		t, _ := n.registry.Get(name)
		if _, err := g.nodeFunction(t); err != nil {
			return err
		}
	}
	return nil
}

func (n *Nodenet) UID() string { return n.uid }

// Name returns the display name.
func (n *Nodenet) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

// SetName changes the display name.
func (n *Nodenet) SetName(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.name = name
}

// CurrentStep returns the number of completed steps.
func (n *Nodenet) CurrentStep() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.g.step
}

// IsActive reports whether the nodenet should keep being stepped by a runner.
func (n *Nodenet) IsActive() bool { return n.active.Load() }

// SetActive starts or stops stepping by a runner. It does not interrupt a
// step in progress.
func (n *Nodenet) SetActive(active bool) { n.active.Store(active) }

// Registry returns the nodetype registry of this nodenet.
func (n *Nodenet) Registry() *nodetype.Registry { return n.registry }

// World returns the bound world adapter, which may be nil.
func (n *Nodenet) World() WorldAdapter {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.world
}

// SetWorld binds or unbinds the environment.
func (n *Nodenet) SetWorld(w WorldAdapter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.world = w
}

// Do runs fn with the nodenet locked, giving it the same API node functions
// get. Node and Gate values must not be retained after fn returns.
func (n *Nodenet) Do(fn func(api *NetAPI) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.api)
}

// Clear removes all nodes, links, nodespaces, groups, monitors and
// modulators and recreates the Root nodespace.
func (n *Nodenet) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	g := newGraph(n.registry, n.library, n.logger)
	// Resolution succeeded for the same registry in New or the last reload.
	_ = n.resolveAll(g)
	n.g = g
	n.locks = make(map[string]*heldLock)
	n.pendingUnlocks = nil
	n.prompt = nil
}

// AvailableGateFunctions lists the names of the built-in gate functions.
func (n *Nodenet) AvailableGateFunctions() []string { return gatefunc.Names() }

// CreateNode creates a node and returns its uid.
func (n *Nodenet) CreateNode(spec NodeSpec) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	node, err := n.g.addNode(spec)
	if err != nil {
		return "", err
	}
	return node.uid, nil
}

// CreateNodespace creates a nodespace below parent and returns its uid.
func (n *Nodenet) CreateNodespace(uid, parent, name string, pos Position) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.g.addNodespace(uid, parent, name, pos)
	if err != nil {
		return "", err
	}
	return ns.uid, nil
}

// DeleteNode removes a node and all its links.
func (n *Nodenet) DeleteNode(uid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.g.deleteNode(uid)
}

// DeleteNodespace removes a nodespace and everything it contains.
func (n *Nodenet) DeleteNodespace(uid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.g.deleteNodespace(uid)
}

// Link creates or updates the link between a gate and a slot.
func (n *Nodenet) Link(source, gate, target, slot string, weight, certainty float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.g.link(source, gate, target, slot, weight, certainty)
}

// Unlink removes links leaving source; empty filters match anything.
func (n *Nodenet) Unlink(source, gate, target, slot string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.g.node(source); err != nil {
		return 0, err
	}
	return n.g.links.removeMatching(source, gate, target, slot), nil
}

// UnlinkCompletely removes every link touching the node.
func (n *Nodenet) UnlinkCompletely(uid string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.g.node(uid); err != nil {
		return err
	}
	n.g.links.removeNode(uid)
	return nil
}

// Links returns all links ordered by source, gate, target and slot.
func (n *Nodenet) Links() []Link {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.g.links.all()
}

// GetNode returns a snapshot of a node.
func (n *Nodenet) GetNode(uid string) (NodeData, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	node, err := n.g.node(uid)
	if err != nil {
		return NodeData{}, err
	}
	return exportNode(node), nil
}

// NodeUIDs returns the uids of all nodes, sorted.
func (n *Nodenet) NodeUIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.g.nodes))
	for _, node := range n.g.sortedNodes() {
		out = append(out, node.uid)
	}
	return out
}

// NodesInHierarchy returns the uids of nodes in nodespace or any nodespace
// below it, sorted.
func (n *Nodenet) NodesInHierarchy(nodespace string) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.g.nodespace(nodespace)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, node := range n.g.sortedNodes() {
		if n.g.isWithin(node.parent, ns.uid) {
			out = append(out, node.uid)
		}
	}
	return out, nil
}

// SetGateFunction sets the gate function for gates of a nodetype within a
// nodespace. spec is a built-in name or Go source; empty removes it.
func (n *Nodenet) SetGateFunction(nodespace, nodetypeName, gate, spec string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.api.SetGateFunction(nodespace, nodetypeName, gate, spec)
}

// RegisterNativeModule adds a native module type and binds its node function.
func (n *Nodenet) RegisterNativeModule(def nodetype.Definition) error {
	fn, err := n.library.Resolve(def)
	if err != nil {
		return fmt.Errorf("native module %s: %w", def.Name, err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.registry.RegisterNative(def); err != nil {
		return err
	}
	n.g.funcs[def.Name] = fn
	return nil
}

// ReloadNativeModules replaces all native module definitions. The graph is
// exported, rebuilt against the new definitions and re-imported with uids
// kept; nodes whose type disappeared are dropped.
func (n *Nodenet) ReloadNativeModules(defs []nodetype.Definition) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, def := range defs {
		if _, err := n.library.Resolve(def); err != nil {
			return fmt.Errorf("native module %s: %w", def.Name, err)
		}
	}
	data := n.exportLocked()
	previous := n.registry.Natives()
	if err := n.registry.ReplaceNatives(defs); err != nil {
		return err
	}
	g, err := n.buildGraph(data)
	if err != nil {
		if rerr := n.registry.ReplaceNatives(previous); rerr != nil {
			n.logger.Error("restoring native modules failed", "error", rerr)
		}
		return err
	}
	g.groups = n.g.groups
	n.g = g
	n.logger.Info("native modules reloaded", "count", len(defs))
	return nil
}

// Step advances the nodenet by one step. A node function failure aborts the
// step, leaves the nodenet inactive and is returned as *NodeFunctionError.
func (n *Nodenet) Step(ctx context.Context) error {
	if w := n.World(); w != nil {
		w.Snapshot()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	done := n.inst.startStep(ctx, n.uid)
	err := n.step()
	done(n.g.step, len(n.g.nodes), err)
	if err != nil {
		n.logger.Error("step failed", "step", n.g.step, "error", err)
		return err
	}
	n.logger.Log(ctx, logging.LevelTrace, "step completed", "step", n.g.step)
	return nil
}
