package convergence

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/adminshell"
	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/report"
	"github.com/replbridge/replbridge/topology"
)

// ErrGroupOperationFailed indicates the replication group rejected a
// required membership change.
var ErrGroupOperationFailed = errors.New("group membership operation failed")

// Convergence reconciles the replication group's actual membership with the
// topology: every running, reachable node a member, the primary anchoring
// the group. All group mutations flow through the primary's admin channel.
type Convergence struct {
	shell  *adminshell.Shell
	logger *zap.Logger
	probe  func(ctx context.Context, endpoint string) bool
}

type Options struct {
	Logger *zap.Logger
	Shell  *adminshell.Shell

	// Probe overrides the TCP reachability check.
	Probe func(ctx context.Context, endpoint string) bool
}

func New(opts *Options) *Convergence {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	probe := opts.Probe
	if probe == nil {
		probe = driver.ProbeEndpoint
	}

	return &Convergence{
		shell:  opts.Shell,
		logger: logger.Named("convergence"),
		probe:  probe,
	}
}

// ConvergeAll drives the full membership sequence: configure the primary,
// ensure the group exists, then configure and join every reachable
// secondary concurrently. Primary-side failures abort; a secondary that
// fails or is unreachable is recorded and skipped, never blocking its
// peers. The group's status is queried once after all joins settle.
func (c *Convergence) ConvergeAll(ctx context.Context, topo *topology.Topology) *report.Report {
	rep := report.NewOperation("converge-membership")

	primary := topo.Primary()

	detail, err := c.shell.ConfigureInstance(ctx, primary)
	rep.Add(report.FromError("configure-primary", detail, err))
	if err != nil {
		c.logger.Error("failed to configure primary", zap.Error(err))
		return rep
	}

	detail, err = c.shell.EnsureCluster(ctx, primary)
	rep.Add(report.FromError("ensure-cluster", detail, err))
	if err != nil {
		c.logger.Error("failed to ensure cluster", zap.Error(err))
		return rep
	}

	secondaries := topo.Secondaries()
	children := make([]*report.Report, len(secondaries))

	var wg sync.WaitGroup
	for i, node := range secondaries {
		wg.Add(1)
		go func(i int, node *topology.NodeDescriptor) {
			defer wg.Done()
			children[i] = c.joinOne(ctx, primary, node)
		}(i, node)
	}
	wg.Wait()

	for _, child := range children {
		rep.AddOptional(child)
	}

	status, err := c.shell.ClusterStatus(ctx, primary)
	rep.AddOptional(report.FromError("cluster-status", status, err))

	return rep
}

// joinOne configures a single secondary and adds it to the group,
// reporting both steps under one node-scoped child.
func (c *Convergence) joinOne(ctx context.Context, primary *topology.NodeDescriptor, node *topology.NodeDescriptor) *report.Report {
	child := &report.Report{
		Name:      fmt.Sprintf("join-secondary-%d", node.ID),
		Succeeded: true,
	}

	if !c.probe(ctx, node.Endpoint()) {
		child.Fail(fmt.Sprintf("node %s is not reachable", node.Endpoint()))
		c.logger.Warn("skipping unreachable secondary",
			zap.Int("node", node.ID),
			zap.String("endpoint", node.Endpoint()))
		return child
	}

	detail, err := c.shell.ConfigureInstance(ctx, node)
	child.Add(report.FromError("configure", detail, err))
	if err != nil {
		c.logger.Warn("failed to configure secondary",
			zap.Int("node", node.ID), zap.Error(err))
		return child
	}

	detail, err = c.shell.AddInstance(ctx, primary, node)
	child.Add(report.FromError("add-instance", detail, err))
	if err != nil {
		c.logger.Warn("failed to add secondary to cluster",
			zap.Int("node", node.ID), zap.Error(err))
	}
	return child
}

// JoinNode configures one secondary and adds it to the group. Unlike
// ConvergeAll, a failure here is the operation's failure.
func (c *Convergence) JoinNode(ctx context.Context, topo *topology.Topology, nodeID int) *report.Report {
	rep := report.NewOperation(fmt.Sprintf("join-node-%d", nodeID))

	node, err := topo.FindSecondary(nodeID)
	if err != nil {
		rep.Fail(err.Error())
		return rep
	}

	child := c.joinOne(ctx, topo.Primary(), node)
	rep.Add(child)
	return rep
}

// RemoveNode evicts a secondary from the replication group. The removal is
// forced, so it works even when the node is already down.
func (c *Convergence) RemoveNode(ctx context.Context, topo *topology.Topology, node *topology.NodeDescriptor) error {
	if err := c.shell.RemoveInstance(ctx, topo.Primary(), node); err != nil {
		return errors.Wrapf(ErrGroupOperationFailed, "node %d: %s", node.ID, err)
	}

	c.logger.Info("node removed from replication group", zap.Int("node", node.ID))
	return nil
}

// DegradedNodes returns the ids of secondaries whose join step failed in a
// ConvergeAll report.
func DegradedNodes(rep *report.Report) []int {
	var ids []int
	for _, child := range rep.Children {
		var id int
		if _, err := fmt.Sscanf(child.Name, "join-secondary-%d", &id); err == nil && !child.Succeeded {
			ids = append(ids, id)
		}
	}
	return ids
}
