package driver

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/topology"
)

var (
	// ErrUnreachable indicates the node did not answer a TCP probe.
	ErrUnreachable = errors.New("node is not reachable")

	// ErrStartTimeout indicates the start action was issued but readiness
	// was never confirmed within the poll bound.
	ErrStartTimeout = errors.New("started but not responding")

	// ErrStopTimeout indicates the node was still running when the poll
	// bound expired.
	ErrStopTimeout = errors.New("still running after stop command")

	// ErrAdminCommandFailed indicates a nonzero exit from the node's
	// administrative channel that is not a recognized idempotent case.
	ErrAdminCommandFailed = errors.New("admin command failed")
)

// Poll pacing is variable so driver tests can run the bounded loops at
// full speed.
var (
	pollInterval        = 1 * time.Second
	pollAttempts uint64 = 30
)

const reachableTimeout = 5 * time.Second

// NodeDriver is the lifecycle contract every deployment kind implements.
// Construction is the only place that branches on the kind; everything else
// treats nodes uniformly through this interface.
type NodeDriver interface {
	// Kind returns the deployment kind this driver manages.
	Kind() topology.DeploymentKind

	// IsRunning performs the kind-specific liveness check.
	IsRunning(ctx context.Context) (bool, error)

	// IsReachable probes the node's client endpoint over TCP. It never
	// returns an error; any failure reads as unreachable.
	IsReachable(ctx context.Context) bool

	// Start launches the node and waits for it to confirm readiness. It
	// is a no-op success when the node is already running. The returned
	// string is a human-readable account of what happened.
	Start(ctx context.Context) (string, error)

	// Stop halts the node and waits for it to confirm shutdown,
	// symmetric to Start.
	Stop(ctx context.Context) (string, error)

	// RunAdminCommand executes a command against the node's
	// administrative surface: local shell, container exec, or ssh.
	RunAdminCommand(ctx context.Context, command string) (*CommandResult, error)

	// CopyFileIn places a local file onto the node's filesystem at
	// remotePath, world-readable.
	CopyFileIn(ctx context.Context, localPath string, remotePath string) error
}

// Options configures driver construction. Runner defaults to an ExecRunner
// sharing the given logger.
type Options struct {
	Logger *zap.Logger
	Runner CommandRunner

	// ComposePath is the container deployment manifest, required for
	// KindContainer nodes.
	ComposePath string
}

// ForNode builds the driver for a node's deployment kind.
func ForNode(node *topology.NodeDescriptor, opts Options) (NodeDriver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = &ExecRunner{Logger: logger}
	}

	switch node.Kind {
	case topology.KindLocalService:
		return newLocalServiceDriver(node, runner, logger), nil
	case topology.KindLocalBinary:
		return newLocalBinaryDriver(node, runner, logger), nil
	case topology.KindContainer:
		if node.Container == nil {
			return nil, errors.Errorf("node %d has kind %s but no container parameters", node.ID, node.Kind)
		}
		return newContainerDriver(node, runner, logger, opts.ComposePath), nil
	case topology.KindRemoteSSH:
		if node.SSH == nil {
			return nil, errors.Errorf("node %d has kind %s but no ssh parameters", node.ID, node.Kind)
		}
		return newRemoteSSHDriver(node, runner, logger), nil
	}
	return nil, errors.Errorf("unknown deployment kind %s", node.Kind)
}

// Factory builds drivers for nodes; the orchestrator and the scaling
// controller take one of these so tests can substitute scripted drivers.
type Factory func(node *topology.NodeDescriptor) (NodeDriver, error)

// ProbeEndpoint dials a node's client endpoint with a short timeout,
// reporting whether anything answered.
func ProbeEndpoint(ctx context.Context, endpoint string) bool {
	d := net.Dialer{Timeout: reachableTimeout}
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

var errNotYet = errors.New("condition not yet met")

// pollCondition re-checks cond at the fixed poll interval up to the poll
// bound, honoring ctx cancellation.
func pollCondition(ctx context.Context, cond func() bool) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(pollInterval), pollAttempts),
		ctx)
	return backoff.Retry(func() error {
		if cond() {
			return nil
		}
		return errNotYet
	}, b)
}

// waitReady blocks until the driver reports running and reachable.
func waitReady(ctx context.Context, d NodeDriver) error {
	err := pollCondition(ctx, func() bool {
		running, runErr := d.IsRunning(ctx)
		return runErr == nil && running && d.IsReachable(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStartTimeout
	}
	return nil
}

// waitStopped blocks until the driver reports not running.
func waitStopped(ctx context.Context, d NodeDriver) error {
	err := pollCondition(ctx, func() bool {
		running, runErr := d.IsRunning(ctx)
		return runErr == nil && !running
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStopTimeout
	}
	return nil
}
