package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/replbridge/replbridge/convergence"
	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/pkg/metrics"
	"github.com/replbridge/replbridge/report"
	"github.com/replbridge/replbridge/topology"
)

// State is the orchestrator's view of the cluster during and after a
// full-cluster operation.
type State string

const (
	StateNotStarted          State = "NotStarted"
	StatePrimaryStarting     State = "PrimaryStarting"
	StateSecondariesStarting State = "SecondariesStarting"
	StateConverging          State = "Converging"
	StateReady               State = "Ready"
	StatePartiallyDegraded   State = "PartiallyDegraded"
	StateStopped             State = "Stopped"
)

const (
	// primarySettleInterval gives the primary time to finish post-start
	// initialization before peers connect.
	primarySettleInterval = 10 * time.Second

	// secondarySettleInterval lets freshly started secondaries finish
	// initialization before membership convergence begins.
	secondarySettleInterval = 30 * time.Second

	restartCooldown = 5 * time.Second
)

// Orchestrator sequences full-cluster lifecycle operations over the
// topology's nodes. The primary is strictly ordered relative to the
// secondaries; secondaries are driven in parallel and best-effort.
type Orchestrator struct {
	topo      *topology.Topology
	conv      *convergence.Convergence
	logger    *zap.Logger
	newDriver driver.Factory

	// settle intervals are fields so tests can collapse the waits
	primarySettle   time.Duration
	secondarySettle time.Duration
	cooldown        time.Duration

	mu    sync.Mutex
	state State
}

type Options struct {
	Logger      *zap.Logger
	Topology    *topology.Topology
	Convergence *convergence.Convergence

	// NewDriver overrides driver construction; nil uses driver.ForNode
	// with the given DriverOptions.
	NewDriver     driver.Factory
	DriverOptions driver.Options
}

func New(opts *Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	newDriver := opts.NewDriver
	if newDriver == nil {
		driverOpts := opts.DriverOptions
		if driverOpts.Logger == nil {
			driverOpts.Logger = logger
		}
		newDriver = func(node *topology.NodeDescriptor) (driver.NodeDriver, error) {
			return driver.ForNode(node, driverOpts)
		}
	}

	return &Orchestrator{
		topo:            opts.Topology,
		conv:            opts.Convergence,
		logger:          logger.Named("orchestrator"),
		newDriver:       newDriver,
		primarySettle:   primarySettleInterval,
		secondarySettle: secondarySettleInterval,
		cooldown:        restartCooldown,
		state:           StateNotStarted,
	}
}

// State returns the orchestrator's current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// StartCluster starts the primary, settles, starts every secondary in
// parallel, settles again, and optionally converges group membership. A
// primary start failure is fatal: no secondary is attempted. Secondary
// failures are recorded per node and leave the cluster partially degraded
// rather than aborting peers.
func (o *Orchestrator) StartCluster(ctx context.Context, convergeMembership bool) *report.Report {
	rep := report.NewOperation("start-cluster")

	o.setState(StatePrimaryStarting)
	primary := o.topo.Primary()

	detail, err := o.startNode(ctx, primary)
	rep.Add(report.FromError("start-primary", detail, err))
	if err != nil {
		metrics.GetBridgeMetrics().NodeFailures.Add(ctx, 1)
		o.logger.Error("primary failed to start, aborting", zap.Error(err))
		o.setState(StateNotStarted)
		return rep
	}

	o.logger.Info("primary started, settling",
		zap.Duration("interval", o.primarySettle))
	sleep(ctx, o.primarySettle)

	o.setState(StateSecondariesStarting)
	secondaries := o.topo.Secondaries()

	if len(secondaries) > 0 {
		secRep := o.eachSecondary(ctx, secondaries, "start", o.startNode)
		rep.Add(secRep)

		o.logger.Info("secondaries started, settling",
			zap.Duration("interval", o.secondarySettle))
		sleep(ctx, o.secondarySettle)
	}

	degraded := !rep.Succeeded

	if convergeMembership {
		o.setState(StateConverging)
		convRep := o.conv.ConvergeAll(ctx, o.topo)
		rep.Add(convRep)
		if !convRep.Succeeded || len(convergence.DegradedNodes(convRep)) > 0 {
			degraded = true
		}
	}

	if degraded {
		o.setState(StatePartiallyDegraded)
	} else {
		o.setState(StateReady)
	}
	return rep
}

// StopCluster stops every secondary in parallel, then the primary.
// Stopping secondaries first keeps them from re-synchronizing against a
// primary that is mid-shutdown.
func (o *Orchestrator) StopCluster(ctx context.Context) *report.Report {
	rep := report.NewOperation("stop-cluster")

	secondaries := o.topo.Secondaries()
	if len(secondaries) > 0 {
		rep.Add(o.eachSecondary(ctx, secondaries, "stop", o.stopNode))
	}

	detail, err := o.stopNode(ctx, o.topo.Primary())
	rep.Add(report.FromError("stop-primary", detail, err))

	o.setState(StateStopped)
	return rep
}

// RestartCluster stops the cluster, waits a short cooldown, and starts it
// again without re-running membership convergence; membership is assumed
// intact from the previous run.
func (o *Orchestrator) RestartCluster(ctx context.Context) *report.Report {
	rep := report.NewOperation("restart-cluster")

	rep.Add(o.StopCluster(ctx))
	sleep(ctx, o.cooldown)
	rep.Add(o.StartCluster(ctx, false))

	return rep
}

// NodeStatus is one node's liveness snapshot.
type NodeStatus struct {
	Node      *topology.NodeDescriptor
	Running   bool
	Reachable bool
	Err       error
}

// Status probes every node without mutating anything. Probe errors are
// carried per node, never fatal.
func (o *Orchestrator) Status(ctx context.Context) []NodeStatus {
	nodes := o.topo.Nodes()
	statuses := make([]NodeStatus, len(nodes))

	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func(i int, node *topology.NodeDescriptor) {
			defer wg.Done()
			statuses[i] = o.probeNode(ctx, node)
		}(i, node)
	}
	wg.Wait()

	return statuses
}

func (o *Orchestrator) probeNode(ctx context.Context, node *topology.NodeDescriptor) NodeStatus {
	st := NodeStatus{Node: node}

	d, err := o.newDriver(node)
	if err != nil {
		st.Err = err
		return st
	}

	st.Running, st.Err = d.IsRunning(ctx)
	st.Reachable = d.IsReachable(ctx)
	return st
}

type nodeAction func(ctx context.Context, node *topology.NodeDescriptor) (string, error)

// eachSecondary fans the action out over every secondary and gathers one
// child report per node, in topology order. The parent report fails when
// any node failed, but every node is attempted.
func (o *Orchestrator) eachSecondary(ctx context.Context, secondaries []*topology.NodeDescriptor, verb string, action nodeAction) *report.Report {
	parent := &report.Report{
		Name:      verb + "-secondaries",
		Succeeded: true,
	}

	children := make([]*report.Report, len(secondaries))

	var wg sync.WaitGroup
	for i, node := range secondaries {
		wg.Add(1)
		go func(i int, node *topology.NodeDescriptor) {
			defer wg.Done()
			detail, err := action(ctx, node)
			children[i] = report.FromError(
				fmt.Sprintf("%s-secondary-%d", verb, node.ID), detail, err)
			if err != nil {
				metrics.GetBridgeMetrics().NodeFailures.Add(ctx, 1)
				o.logger.Warn("secondary operation failed",
					zap.String("action", verb),
					zap.Int("node", node.ID),
					zap.Error(err))
			}
		}(i, node)
	}
	wg.Wait()

	for _, child := range children {
		parent.Add(child)
	}
	return parent
}

func (o *Orchestrator) startNode(ctx context.Context, node *topology.NodeDescriptor) (string, error) {
	d, err := o.newDriver(node)
	if err != nil {
		return "", err
	}
	return d.Start(ctx)
}

func (o *Orchestrator) stopNode(ctx context.Context, node *topology.NodeDescriptor) (string, error) {
	d, err := o.newDriver(node)
	if err != nil {
		return "", err
	}
	return d.Stop(ctx)
}
