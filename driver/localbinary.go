package driver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/topology"
)

// localBinaryDriver manages a node launched directly from a binary
// installation, tracked through the local process table.
type localBinaryDriver struct {
	node   *topology.NodeDescriptor
	runner CommandRunner
	logger *zap.Logger
}

var _ NodeDriver = (*localBinaryDriver)(nil)

func newLocalBinaryDriver(node *topology.NodeDescriptor, runner CommandRunner, logger *zap.Logger) *localBinaryDriver {
	return &localBinaryDriver{
		node:   node,
		runner: runner,
		logger: logger,
	}
}

func (d *localBinaryDriver) Kind() topology.DeploymentKind {
	return topology.KindLocalBinary
}

func (d *localBinaryDriver) serverPath() string {
	if d.node.Binary != nil && d.node.Binary.ServerPath != "" {
		return d.node.Binary.ServerPath
	}
	return "mysqld"
}

func (d *localBinaryDriver) IsRunning(ctx context.Context) (bool, error) {
	res, err := d.runner.Run(ctx, "pgrep", "-f", filepath.Base(d.serverPath()))
	if err != nil {
		return false, errors.Wrap(err, "failed to check process table")
	}
	return res.Ok(), nil
}

func (d *localBinaryDriver) IsReachable(ctx context.Context) bool {
	return ProbeEndpoint(ctx, d.node.Endpoint())
}

func (d *localBinaryDriver) Start(ctx context.Context) (string, error) {
	if running, err := d.IsRunning(ctx); err == nil && running {
		return "server process already running", nil
	}

	var dataDir, configFile string
	if d.node.Binary != nil {
		dataDir = d.node.Binary.DataDir
		configFile = d.node.Binary.ConfigFile
	}

	launch := fmt.Sprintf("nohup %s --defaults-file=%s --datadir=%s >/dev/null 2>&1 &",
		d.serverPath(), configFile, dataDir)
	res, err := d.runner.Run(ctx, "sh", "-c", launch)
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrAdminCommandFailed, "failed to launch server: %s", res.Output())
	}

	if err := waitReady(ctx, d); err != nil {
		return "", err
	}
	return "server process started", nil
}

func (d *localBinaryDriver) Stop(ctx context.Context) (string, error) {
	if running, err := d.IsRunning(ctx); err == nil && !running {
		return "server process not running", nil
	}

	res, err := d.runner.Run(ctx, "pkill", "-f", filepath.Base(d.serverPath()))
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrAdminCommandFailed, "failed to signal server: %s", res.Output())
	}

	if err := waitStopped(ctx, d); err != nil {
		return "", err
	}
	return "server process stopped", nil
}

func (d *localBinaryDriver) RunAdminCommand(ctx context.Context, command string) (*CommandResult, error) {
	res, err := d.runner.Run(ctx, "sh", "-c", command)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("admin command completed",
		zap.Int("node", d.node.ID),
		zap.Int("exitCode", res.ExitCode))
	return res, nil
}

func (d *localBinaryDriver) CopyFileIn(ctx context.Context, localPath string, remotePath string) error {
	return copyFileLocal(ctx, d.runner, localPath, remotePath)
}
