package scaling

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/replbridge/replbridge/convergence"
	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/manifest"
	"github.com/replbridge/replbridge/pkg/metrics"
	"github.com/replbridge/replbridge/report"
	"github.com/replbridge/replbridge/topology"
)

// Controller grows and shrinks the container secondary fleet toward a
// target size. Remote SSH secondaries are never auto-scaled; they only
// count against the target. Shrinking removes the most recently added
// container first, so repeated scale operations are deterministic.
type Controller struct {
	topo      *topology.Topology
	conv      *convergence.Convergence
	gen       *manifest.Generator
	logger    *zap.Logger
	newDriver driver.Factory

	// topologyPath, when set, persists the topology after every
	// successful mutation.
	topologyPath string
}

type Options struct {
	Logger      *zap.Logger
	Topology    *topology.Topology
	Convergence *convergence.Convergence
	Manifest    *manifest.Generator

	// NewDriver overrides driver construction; nil uses driver.ForNode
	// with DriverOptions.
	NewDriver     driver.Factory
	DriverOptions driver.Options

	TopologyPath string
}

func New(opts *Options) *Controller {
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
		if driverOpts.ComposePath == "" && opts.Manifest != nil {
			driverOpts.ComposePath = opts.Manifest.ComposePath()
		}
		newDriver = func(node *topology.NodeDescriptor) (driver.NodeDriver, error) {
			return driver.ForNode(node, driverOpts)
		}
	}

	return &Controller{
		topo:         opts.Topology,
		conv:         opts.Convergence,
		gen:          opts.Manifest,
		logger:       logger.Named("scaling"),
		newDriver:    newDriver,
		topologyPath: opts.TopologyPath,
	}
}

// ScaleTo reconciles the container secondary count so the total secondary
// count approaches target. With detachOnly set, shrinking skips the
// graceful group removal and goes straight to deprovisioning; the default
// removes each node from the replication group first.
func (c *Controller) ScaleTo(ctx context.Context, target int, detachOnly bool) *report.Report {
	rep := report.NewOperation("scale-cluster")

	sshCount := len(c.topo.SecondariesOfKind(topology.KindRemoteSSH))
	previous := len(c.topo.SecondariesOfKind(topology.KindContainer))

	dockerTarget := target - sshCount
	if dockerTarget < 0 {
		dockerTarget = 0
	}

	switch {
	case dockerTarget == previous:
		rep.Detail = fmt.Sprintf("already at %d container secondaries", previous)
	case dockerTarget > previous:
		c.grow(ctx, rep, dockerTarget-previous)
	default:
		c.shrink(ctx, rep, previous-dockerTarget, detachOnly)
	}

	final := len(c.topo.SecondariesOfKind(topology.KindContainer))
	rep.Detail = appendCounts(rep.Detail, previous, dockerTarget, final)

	c.persist(rep)
	return rep
}

func appendCounts(detail string, previous, target, final int) string {
	counts := fmt.Sprintf("containers: previous=%d target=%d final=%d", previous, target, final)
	if detail == "" {
		return counts
	}
	return detail + "; " + counts
}

// grow adds count container secondaries, regenerates the deployment
// manifest once, starts the new nodes in parallel, and joins whichever of
// them came up reachable.
func (c *Controller) grow(ctx context.Context, rep *report.Report, count int) {
	added := make([]*topology.NodeDescriptor, 0, count)
	for i := 0; i < count; i++ {
		node, err := c.topo.AddSecondary(topology.SecondarySpec{Kind: topology.KindContainer})
		if err != nil {
			rep.Add(report.FromError("add-secondary", "", err))
			break
		}
		added = append(added, node)
		rep.Add(report.Success(fmt.Sprintf("add-secondary-%d", node.ID), node.Container.Name))
	}

	if len(added) == 0 {
		return
	}

	if err := c.gen.WriteAll(c.topo); err != nil {
		rep.Add(report.FromError("write-manifest", "", err))
		return
	}
	rep.Add(report.Success("write-manifest", c.gen.ComposePath()))

	children := make([]*report.Report, len(added))
	var wg sync.WaitGroup
	for i, node := range added {
		wg.Add(1)
		go func(i int, node *topology.NodeDescriptor) {
			defer wg.Done()
			children[i] = c.startOne(ctx, node)
		}(i, node)
	}
	wg.Wait()

	for i, child := range children {
		// a provisioned node that never started fails the scale operation
		rep.Add(child)
		if !child.Succeeded {
			continue
		}
		// configure and join only the nodes that actually came up
		rep.AddOptional(c.conv.JoinNode(ctx, c.topo, added[i].ID))
	}
}

func (c *Controller) startOne(ctx context.Context, node *topology.NodeDescriptor) *report.Report {
	name := fmt.Sprintf("start-secondary-%d", node.ID)

	d, err := c.newDriver(node)
	if err != nil {
		return report.Failure(name, err.Error())
	}

	detail, err := d.Start(ctx)
	if err != nil {
		metrics.GetBridgeMetrics().NodeFailures.Add(ctx, 1)
		c.logger.Warn("new secondary failed to start",
			zap.Int("node", node.ID), zap.Error(err))
	}
	return report.FromError(name, detail, err)
}

// shrink removes count container secondaries from the end of the ordered
// sequence. Each node is evicted from the replication group (unless
// detachOnly), stopped, deprovisioned, and dropped from the topology.
// Group eviction failures are logged and recorded but never block
// deprovisioning.
func (c *Controller) shrink(ctx context.Context, rep *report.Report, count int, detachOnly bool) {
	containers := c.topo.SecondariesOfKind(topology.KindContainer)

	for i := 0; i < count; i++ {
		node := containers[len(containers)-1-i]
		name := fmt.Sprintf("remove-secondary-%d", node.ID)

		if !detachOnly {
			if err := c.conv.RemoveNode(ctx, c.topo, node); err != nil {
				c.logger.Warn("group eviction failed, deprovisioning anyway",
					zap.Int("node", node.ID), zap.Error(err))
				rep.AddOptional(report.Failure(name+"-evict", err.Error()))
			}
		}

		if err := c.deprovision(ctx, node); err != nil {
			c.logger.Warn("failed to deprovision container",
				zap.Int("node", node.ID), zap.Error(err))
			rep.AddOptional(report.Failure(name+"-deprovision", err.Error()))
		}

		if _, err := c.topo.RemoveSecondary(node.ID); err != nil {
			rep.Add(report.FromError(name, "", err))
			continue
		}
		rep.Add(report.Success(name, node.Container.Name))
	}

	if err := c.gen.WriteAll(c.topo); err != nil {
		rep.Add(report.FromError("write-manifest", "", err))
		return
	}
	rep.Add(report.Success("write-manifest", c.gen.ComposePath()))
}

// deprovision stops the container and force-removes it with its state.
func (c *Controller) deprovision(ctx context.Context, node *topology.NodeDescriptor) error {
	d, err := c.newDriver(node)
	if err != nil {
		return err
	}

	if _, err := d.Stop(ctx); err != nil {
		c.logger.Debug("container did not stop cleanly",
			zap.Int("node", node.ID), zap.Error(err))
	}

	if remover, ok := d.(interface {
		Remove(ctx context.Context) error
	}); ok {
		return remover.Remove(ctx)
	}
	return nil
}

func (c *Controller) persist(rep *report.Report) {
	if c.topologyPath == "" {
		return
	}
	if err := c.topo.Save(c.topologyPath); err != nil {
		c.logger.Error("failed to persist topology", zap.Error(err))
		rep.Add(report.FromError("save-topology", "", err))
		return
	}
	rep.AddOptional(report.Success("save-topology", c.topologyPath))
}
