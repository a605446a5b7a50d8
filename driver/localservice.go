package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/topology"
)

// serviceCandidates are the unit names tried in order when resolving the
// database service; distributions disagree on which one they ship.
var serviceCandidates = []string{"mysql", "mysqld"}

// localServiceDriver manages a node whose server is controlled through the
// local system service manager.
type localServiceDriver struct {
	node   *topology.NodeDescriptor
	runner CommandRunner
	logger *zap.Logger

	serviceName string
}

var _ NodeDriver = (*localServiceDriver)(nil)

func newLocalServiceDriver(node *topology.NodeDescriptor, runner CommandRunner, logger *zap.Logger) *localServiceDriver {
	return &localServiceDriver{
		node:   node,
		runner: runner,
		logger: logger,
	}
}

func (d *localServiceDriver) Kind() topology.DeploymentKind {
	return topology.KindLocalService
}

// resolveServiceName picks the first unit the service manager knows about,
// falling back to the last candidate.
func (d *localServiceDriver) resolveServiceName(ctx context.Context) string {
	if d.serviceName != "" {
		return d.serviceName
	}

	for _, candidate := range serviceCandidates {
		unit := candidate + ".service"
		res, err := d.runner.Run(ctx, "systemctl", "list-unit-files", unit)
		if err == nil && strings.Contains(res.Stdout, unit) {
			d.serviceName = candidate
			return candidate
		}
	}

	d.serviceName = serviceCandidates[len(serviceCandidates)-1]
	return d.serviceName
}

func (d *localServiceDriver) IsRunning(ctx context.Context) (bool, error) {
	service := d.resolveServiceName(ctx)
	res, err := d.runner.Run(ctx, "systemctl", "is-active", service)
	if err != nil {
		return false, errors.Wrap(err, "failed to query service state")
	}
	// is-active exits nonzero for inactive units, which is a valid answer
	return strings.TrimSpace(res.Stdout) == "active", nil
}

func (d *localServiceDriver) IsReachable(ctx context.Context) bool {
	return ProbeEndpoint(ctx, d.node.Endpoint())
}

func (d *localServiceDriver) Start(ctx context.Context) (string, error) {
	if running, err := d.IsRunning(ctx); err == nil && running {
		return "service already running", nil
	}

	service := d.resolveServiceName(ctx)
	res, err := d.runner.Run(ctx, "sudo", "systemctl", "start", service)
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrAdminCommandFailed, "failed to start service %s: %s", service, res.Output())
	}

	if err := waitReady(ctx, d); err != nil {
		return "", err
	}
	return "service started", nil
}

func (d *localServiceDriver) Stop(ctx context.Context) (string, error) {
	if running, err := d.IsRunning(ctx); err == nil && !running {
		return "service not running", nil
	}

	service := d.resolveServiceName(ctx)
	res, err := d.runner.Run(ctx, "sudo", "systemctl", "stop", service)
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrAdminCommandFailed, "failed to stop service %s: %s", service, res.Output())
	}

	if err := waitStopped(ctx, d); err != nil {
		return "", err
	}
	return "service stopped", nil
}

func (d *localServiceDriver) RunAdminCommand(ctx context.Context, command string) (*CommandResult, error) {
	res, err := d.runner.Run(ctx, "sh", "-c", command)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("admin command completed",
		zap.Int("node", d.node.ID),
		zap.Int("exitCode", res.ExitCode))
	return res, nil
}

func (d *localServiceDriver) CopyFileIn(ctx context.Context, localPath string, remotePath string) error {
	return copyFileLocal(ctx, d.runner, localPath, remotePath)
}

// copyFileLocal stages a file into place on the local machine, escalating
// through sudo since plugin directories are usually root-owned.
func copyFileLocal(ctx context.Context, runner CommandRunner, localPath string, remotePath string) error {
	script := fmt.Sprintf("cp %s %s && chmod 755 %s", localPath, remotePath, remotePath)
	res, err := runner.Run(ctx, "sh", "-c", script)
	if err != nil {
		return err
	}
	if res.Ok() {
		return nil
	}

	res, err = runner.Run(ctx, "sudo", "sh", "-c", script)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return errors.Wrapf(ErrAdminCommandFailed, "failed to copy %s to %s: %s", localPath, remotePath, res.Output())
	}
	return nil
}
