package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/topology"
)

// remoteSSHDriver manages a node on a remote machine, issuing every action
// over ssh. The remote server itself is expected to be service-managed.
type remoteSSHDriver struct {
	node   *topology.NodeDescriptor
	runner CommandRunner
	logger *zap.Logger
}

var _ NodeDriver = (*remoteSSHDriver)(nil)

func newRemoteSSHDriver(node *topology.NodeDescriptor, runner CommandRunner, logger *zap.Logger) *remoteSSHDriver {
	return &remoteSSHDriver{
		node:   node,
		runner: runner,
		logger: logger,
	}
}

func (d *remoteSSHDriver) Kind() topology.DeploymentKind {
	return topology.KindRemoteSSH
}

func (d *remoteSSHDriver) sshArgs(command string) []string {
	ssh := d.node.SSH

	var args []string
	if ssh.KeyPath != "" {
		args = append(args, "-i", ssh.KeyPath)
	}
	args = append(args,
		"-o", "StrictHostKeyChecking=no",
		"-o", "ConnectTimeout=10",
		"-p", strconv.Itoa(ssh.Port),
		fmt.Sprintf("%s@%s", ssh.User, d.node.Host),
		command,
	)
	return args
}

func (d *remoteSSHDriver) runRemote(ctx context.Context, command string) (*CommandResult, error) {
	return d.runner.Run(ctx, "ssh", d.sshArgs(command)...)
}

func (d *remoteSSHDriver) IsRunning(ctx context.Context) (bool, error) {
	res, err := d.runRemote(ctx, "systemctl is-active mysql || systemctl is-active mysqld")
	if err != nil {
		return false, errors.Wrap(err, "failed to query remote service state")
	}
	return res.Ok() && strings.Contains(res.Stdout, "active"), nil
}

func (d *remoteSSHDriver) IsReachable(ctx context.Context) bool {
	return ProbeEndpoint(ctx, d.node.Endpoint())
}

func (d *remoteSSHDriver) Start(ctx context.Context) (string, error) {
	if running, err := d.IsRunning(ctx); err == nil && running {
		return "remote service already running", nil
	}

	res, err := d.runRemote(ctx, "sudo systemctl start mysql || sudo systemctl start mysqld")
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrAdminCommandFailed, "failed to start remote service on %s: %s", d.node.Host, res.Output())
	}

	if err := waitReady(ctx, d); err != nil {
		return "", err
	}
	return "remote service started", nil
}

func (d *remoteSSHDriver) Stop(ctx context.Context) (string, error) {
	if running, err := d.IsRunning(ctx); err == nil && !running {
		return "remote service not running", nil
	}

	res, err := d.runRemote(ctx, "sudo systemctl stop mysql || sudo systemctl stop mysqld")
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrAdminCommandFailed, "failed to stop remote service on %s: %s", d.node.Host, res.Output())
	}

	if err := waitStopped(ctx, d); err != nil {
		return "", err
	}
	return "remote service stopped", nil
}

func (d *remoteSSHDriver) RunAdminCommand(ctx context.Context, command string) (*CommandResult, error) {
	res, err := d.runRemote(ctx, command)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("admin command completed",
		zap.Int("node", d.node.ID),
		zap.String("host", d.node.Host),
		zap.Int("exitCode", res.ExitCode))
	return res, nil
}

// CopyFileIn stages the file through the remote /tmp and moves it into
// place with sudo, since target directories are usually root-owned.
func (d *remoteSSHDriver) CopyFileIn(ctx context.Context, localPath string, remotePath string) error {
	ssh := d.node.SSH
	stagePath := "/tmp/" + filepath.Base(localPath)

	var scpArgs []string
	if ssh.KeyPath != "" {
		scpArgs = append(scpArgs, "-i", ssh.KeyPath)
	}
	scpArgs = append(scpArgs,
		"-o", "StrictHostKeyChecking=no",
		"-P", strconv.Itoa(ssh.Port),
		localPath,
		fmt.Sprintf("%s@%s:%s", ssh.User, d.node.Host, stagePath),
	)

	res, err := d.runner.Run(ctx, "scp", scpArgs...)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return errors.Wrapf(ErrAdminCommandFailed, "failed to copy file to %s: %s", d.node.Host, res.Output())
	}

	move := fmt.Sprintf("sudo mv %s %s && sudo chmod 755 %s", stagePath, remotePath, remotePath)
	res, err = d.runRemote(ctx, move)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return errors.Wrapf(ErrAdminCommandFailed, "failed to place file on %s: %s", d.node.Host, res.Output())
	}
	return nil
}
