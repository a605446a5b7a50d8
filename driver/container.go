package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/topology"
)

// containerDriver manages a node running as a container, shelling out to
// the container runtime CLI. Containers are created from the deployment
// manifest; start/stop address the node's own service within it.
type containerDriver struct {
	node        *topology.NodeDescriptor
	runner      CommandRunner
	logger      *zap.Logger
	composePath string
}

var _ NodeDriver = (*containerDriver)(nil)

func newContainerDriver(node *topology.NodeDescriptor, runner CommandRunner, logger *zap.Logger, composePath string) *containerDriver {
	return &containerDriver{
		node:        node,
		runner:      runner,
		logger:      logger,
		composePath: composePath,
	}
}

func (d *containerDriver) Kind() topology.DeploymentKind {
	return topology.KindContainer
}

func (d *containerDriver) containerName() string {
	return d.node.Container.Name
}

func (d *containerDriver) IsRunning(ctx context.Context) (bool, error) {
	res, err := d.runner.Run(ctx, "docker", "inspect", "-f", "{{.State.Running}}", d.containerName())
	if err != nil {
		return false, errors.Wrap(err, "failed to inspect container")
	}
	// a missing container inspects with a nonzero exit, which just means
	// it is not running
	if !res.Ok() {
		return false, nil
	}
	return strings.TrimSpace(res.Stdout) == "true", nil
}

func (d *containerDriver) IsReachable(ctx context.Context) bool {
	return ProbeEndpoint(ctx, d.node.Endpoint())
}

func (d *containerDriver) Start(ctx context.Context) (string, error) {
	if running, err := d.IsRunning(ctx); err == nil && running {
		return "container already running", nil
	}

	args := []string{"compose"}
	if d.composePath != "" {
		args = append(args, "-f", d.composePath)
	}
	args = append(args, "up", "-d", d.containerName())

	res, err := d.runner.Run(ctx, "docker", args...)
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrAdminCommandFailed, "failed to start container %s: %s", d.containerName(), res.Output())
	}

	if err := waitReady(ctx, d); err != nil {
		return "", err
	}
	return "container started", nil
}

func (d *containerDriver) Stop(ctx context.Context) (string, error) {
	if running, err := d.IsRunning(ctx); err == nil && !running {
		return "container not running", nil
	}

	res, err := d.runner.Run(ctx, "docker", "stop", d.containerName())
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrAdminCommandFailed, "failed to stop container %s: %s", d.containerName(), res.Output())
	}

	if err := waitStopped(ctx, d); err != nil {
		return "", err
	}
	return "container stopped", nil
}

// Remove force-removes the container and its state. Used when a node is
// deprovisioned by scaling or cleanup, not part of the lifecycle contract.
func (d *containerDriver) Remove(ctx context.Context) error {
	res, err := d.runner.Run(ctx, "docker", "rm", "-f", d.containerName())
	if err != nil {
		return err
	}
	if !res.Ok() {
		return errors.Wrapf(ErrAdminCommandFailed, "failed to remove container %s: %s", d.containerName(), res.Output())
	}
	return nil
}

func (d *containerDriver) RunAdminCommand(ctx context.Context, command string) (*CommandResult, error) {
	res, err := d.runner.Run(ctx, "docker", "exec", d.containerName(), "bash", "-c", command)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("admin command completed",
		zap.Int("node", d.node.ID),
		zap.String("container", d.containerName()),
		zap.Int("exitCode", res.ExitCode))
	return res, nil
}

func (d *containerDriver) CopyFileIn(ctx context.Context, localPath string, remotePath string) error {
	res, err := d.runner.Run(ctx, "docker", "cp", localPath, fmt.Sprintf("%s:%s", d.containerName(), remotePath))
	if err != nil {
		return err
	}
	if !res.Ok() {
		return errors.Wrapf(ErrAdminCommandFailed, "failed to copy file into container %s: %s", d.containerName(), res.Output())
	}

	res, err = d.runner.Run(ctx, "docker", "exec", d.containerName(), "chmod", "755", remotePath)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return errors.Wrapf(ErrAdminCommandFailed, "failed to set permissions on %s: %s", remotePath, res.Output())
	}
	return nil
}
