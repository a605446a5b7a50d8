package adminshell

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/topology"
)

// ErrShellFailed indicates the admin shell ran but reported a failure that
// is not one of the recognized already-applied outcomes.
var ErrShellFailed = errors.New("admin shell command failed")

const defaultShellPath = "mysqlsh"

// Shell drives group administration through the database admin shell CLI.
// Scripts run from the coordinating host and connect to nodes over their
// client endpoints, so the shell binary only needs to exist locally.
//
// Every mutating script tolerates re-runs: outcomes the server reports as
// already applied are treated as success, which keeps cluster bring-up
// restartable at any step.
type Shell struct {
	runner      driver.CommandRunner
	logger      *zap.Logger
	shellPath   string
	clusterName string
}

type Options struct {
	Logger *zap.Logger
	Runner driver.CommandRunner

	// ShellPath overrides the admin shell binary; empty resolves
	// "mysqlsh" from PATH.
	ShellPath string

	ClusterName string
}

func NewShell(opts *Options) *Shell {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = &driver.ExecRunner{Logger: logger}
	}
	shellPath := opts.ShellPath
	if shellPath == "" {
		shellPath = defaultShellPath
	}

	return &Shell{
		runner:      runner,
		logger:      logger,
		shellPath:   shellPath,
		clusterName: opts.ClusterName,
	}
}

// runJS executes a javascript admin script connected to uri.
func (s *Shell) runJS(ctx context.Context, uri string, script string) (string, error) {
	res, err := s.runner.Run(ctx, s.shellPath, uri, "--js", "--no-wizard", "-e", script)
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", errors.Wrapf(ErrShellFailed, "%s", res.Output())
	}
	return res.Stdout, nil
}

// RunSQL executes a single SQL statement connected to uri and returns the
// raw result, leaving exit-status interpretation to the caller.
func (s *Shell) RunSQL(ctx context.Context, uri string, sql string) (*driver.CommandResult, error) {
	return s.runner.Run(ctx, s.shellPath, uri, "--sql", "--no-wizard", "-e", sql)
}

// ConfigureInstance prepares a node for group replication. A node that is
// already configured is a success.
func (s *Shell) ConfigureInstance(ctx context.Context, node *topology.NodeDescriptor) (string, error) {
	uri := node.AdminURI()
	script := fmt.Sprintf(`
print('Configuring instance for group replication...');
try {
    dba.configureInstance('%s');
    print('Instance configured');
} catch (e) {
    if (e.message.includes('already configured') || e.message.includes('already been configured')) {
        print('Instance already configured');
    } else {
        print('Error: ' + e.message);
        throw e;
    }
}
`, uri)

	out, err := s.runJS(ctx, uri, script)
	if err != nil {
		return "", errors.Wrapf(err, "failed to configure node %d", node.ID)
	}
	s.logger.Debug("instance configured", zap.Int("node", node.ID))
	return strings.TrimSpace(out), nil
}

// EnsureCluster creates the replication group on the primary, or adopts the
// existing one when the group is already up. The primary's group address
// anchors membership traffic.
func (s *Shell) EnsureCluster(ctx context.Context, primary *topology.NodeDescriptor) (string, error) {
	uri := primary.AdminURI()
	script := fmt.Sprintf(`
shell.options.useWizards = false;
print('Creating or getting cluster...');
var cluster;
try {
    cluster = dba.getCluster('%s');
    print('Cluster already exists: ' + cluster.getName());
} catch (e) {
    if (e.message.includes('not found') || e.message.includes('does not exist') || e.message.includes('standalone instance')) {
        cluster = dba.createCluster('%s', {
            localAddress: '%s'
        });
        print('Cluster created: ' + cluster.getName());
    } else {
        throw e;
    }
}
`, s.clusterName, s.clusterName, primary.GroupAddress)

	out, err := s.runJS(ctx, uri, script)
	if err != nil {
		return "", errors.Wrap(err, "failed to ensure cluster on primary")
	}
	return strings.TrimSpace(out), nil
}

// AddInstance joins a node to the replication group, cloning state from the
// group so a blank node catches up without binlog history. A node that is
// already a member is a success.
func (s *Shell) AddInstance(ctx context.Context, primary *topology.NodeDescriptor, node *topology.NodeDescriptor) (string, error) {
	script := fmt.Sprintf(`
var cluster = dba.getCluster('%s');
print('Adding instance to cluster...');
try {
    cluster.addInstance('%s', {
        recoveryMethod: 'clone',
        localAddress: '%s'
    });
    print('Instance added');
} catch (e) {
    if (e.message.includes('already a member') || e.message.includes('is already part')) {
        print('Instance is already a member of the cluster');
    } else {
        print('Error: ' + e.message);
        throw e;
    }
}
`, s.clusterName, node.AdminURI(), node.GroupAddress)

	out, err := s.runJS(ctx, primary.AdminURI(), script)
	if err != nil {
		return "", errors.Wrapf(err, "failed to add node %d to cluster", node.ID)
	}
	s.logger.Debug("instance added", zap.Int("node", node.ID))
	return strings.TrimSpace(out), nil
}

// RemoveInstance drops a node from the replication group. Removal is
// forced so unreachable nodes can still be evicted, and a node the group
// no longer knows about is a success.
func (s *Shell) RemoveInstance(ctx context.Context, primary *topology.NodeDescriptor, node *topology.NodeDescriptor) error {
	script := fmt.Sprintf(`
var cluster = dba.getCluster('%s');
print('Removing instance from cluster...');
try {
    cluster.removeInstance('%s', {force: true});
    print('Instance removed');
} catch (e) {
    if (e.message.includes('not found') || e.message.includes('does not exist') || e.message.includes('is not a member')) {
        print('Instance is not a member of the cluster');
    } else {
        print('Error: ' + e.message);
        throw e;
    }
}
`, s.clusterName, node.AdminURI())

	if _, err := s.runJS(ctx, primary.AdminURI(), script); err != nil {
		return errors.Wrapf(err, "failed to remove node %d from cluster", node.ID)
	}
	s.logger.Debug("instance removed", zap.Int("node", node.ID))
	return nil
}

// ClusterStatus returns the group's status document as JSON.
func (s *Shell) ClusterStatus(ctx context.Context, primary *topology.NodeDescriptor) (string, error) {
	script := fmt.Sprintf(`
var cluster = dba.getCluster('%s');
print(JSON.stringify(cluster.status(), null, 2));
`, s.clusterName)

	out, err := s.runJS(ctx, primary.AdminURI(), script)
	if err != nil {
		return "", errors.Wrap(err, "failed to query cluster status")
	}
	return strings.TrimSpace(out), nil
}
