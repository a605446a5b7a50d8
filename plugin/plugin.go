package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/adminshell"
	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/report"
	"github.com/replbridge/replbridge/topology"
	"github.com/replbridge/replbridge/utils/sliceutils"
)

const (
	// DefaultEngineName is the storage engine plugin managed by default.
	DefaultEngineName = "lineairdb"

	// DefaultPluginDir is where the server loads plugin shared objects
	// from on most installations.
	DefaultPluginDir = "/usr/lib/mysql/plugin"
)

// Manager checks for and installs a storage engine plugin across every
// node in the topology. File placement goes through each node's driver, so
// local, container and remote nodes are all handled the same way.
type Manager struct {
	topo      *topology.Topology
	shell     *adminshell.Shell
	logger    *zap.Logger
	newDriver driver.Factory
	engine    string
	pluginDir string
	probe     func(ctx context.Context, endpoint string) bool
}

type Options struct {
	Logger   *zap.Logger
	Topology *topology.Topology
	Shell    *adminshell.Shell

	NewDriver     driver.Factory
	DriverOptions driver.Options

	// EngineName is the plugin name used in SQL statements.
	EngineName string

	// PluginDir is the server's plugin directory on each node.
	PluginDir string

	// Probe overrides the TCP reachability check.
	Probe func(ctx context.Context, endpoint string) bool
}

func New(opts *Options) *Manager {
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

	engine := opts.EngineName
	if engine == "" {
		engine = DefaultEngineName
	}
	pluginDir := opts.PluginDir
	if pluginDir == "" {
		pluginDir = DefaultPluginDir
	}
	probe := opts.Probe
	if probe == nil {
		probe = driver.ProbeEndpoint
	}

	return &Manager{
		topo:      opts.Topology,
		shell:     opts.Shell,
		logger:    logger.Named("plugin"),
		newDriver: newDriver,
		engine:    engine,
		pluginDir: pluginDir,
		probe:     probe,
	}
}

// Check queries every node for the storage engine plugin. A node that does
// not have it, or cannot be queried, fails its step.
func (m *Manager) Check(ctx context.Context) *report.Report {
	rep := report.NewOperation("plugin-check")

	m.eachNode(ctx, rep, "check", func(ctx context.Context, node *topology.NodeDescriptor) (string, error) {
		sql := fmt.Sprintf("SHOW PLUGINS WHERE Name='%s';", m.engine)
		res, err := m.shell.RunSQL(ctx, node.AdminURI(), sql)
		if err != nil {
			return "", err
		}
		if !res.Ok() {
			return "", errors.Wrapf(driver.ErrAdminCommandFailed, "%s", res.Output())
		}
		if !strings.Contains(strings.ToLower(res.Stdout), m.engine) {
			return "", errors.Errorf("%s plugin is not installed", m.engine)
		}
		return m.engine + " plugin is available", nil
	})

	return rep
}

// Install places the plugin shared object on every node and loads it. A
// server that reports the plugin as already present succeeds.
func (m *Manager) Install(ctx context.Context, pluginPath string) *report.Report {
	rep := report.NewOperation("plugin-install")

	if _, err := os.Stat(pluginPath); err != nil {
		rep.Fail(fmt.Sprintf("plugin file not found: %s", pluginPath))
		return rep
	}

	fileName := filepath.Base(pluginPath)
	targetPath := filepath.Join(m.pluginDir, fileName)

	m.eachNode(ctx, rep, "install", func(ctx context.Context, node *topology.NodeDescriptor) (string, error) {
		d, err := m.newDriver(node)
		if err != nil {
			return "", err
		}

		if err := d.CopyFileIn(ctx, pluginPath, targetPath); err != nil {
			return "", errors.Wrap(err, "failed to place plugin file")
		}

		sql := fmt.Sprintf("INSTALL PLUGIN %s SONAME '%s';", m.engine, fileName)
		res, err := m.shell.RunSQL(ctx, node.AdminURI(), sql)
		if err != nil {
			return "", err
		}
		if !res.Ok() {
			out := strings.ToLower(res.Output())
			if strings.Contains(out, "already exists") || strings.Contains(out, "duplicate") {
				return m.engine + " plugin already installed", nil
			}
			return "", errors.Wrapf(driver.ErrAdminCommandFailed, "%s", res.Output())
		}
		return m.engine + " plugin installed", nil
	})

	return rep
}

// eachNode fans the action out across the whole topology, primary
// included, gathering one child per node in topology order. Every node is
// attempted regardless of sibling failures.
func (m *Manager) eachNode(ctx context.Context, rep *report.Report, verb string, action func(ctx context.Context, node *topology.NodeDescriptor) (string, error)) {
	nodes := m.topo.Nodes()
	children := make([]*report.Report, len(nodes))

	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func(i int, node *topology.NodeDescriptor) {
			defer wg.Done()

			name := fmt.Sprintf("%s-node-%d", verb, node.ID)
			if !m.probe(ctx, node.Endpoint()) {
				children[i] = report.Failure(name, "node is not reachable")
				return
			}

			detail, err := action(ctx, node)
			if err != nil {
				m.logger.Warn("plugin operation failed on node",
					zap.String("action", verb),
					zap.Int("node", node.ID),
					zap.Error(err))
			}
			children[i] = report.FromError(name, detail, err)
		}(i, node)
	}
	wg.Wait()

	for _, child := range children {
		rep.Add(child)
	}
}

// FindPlugin searches for the plugin shared object in extraDirs followed
// by the usual build and install locations.
func FindPlugin(engine string, extraDirs ...string) (string, error) {
	names := []string{
		fmt.Sprintf("ha_%s.so", engine),
		fmt.Sprintf("ha_%s_storage_engine.so", engine),
	}

	dirs := sliceutils.RemoveDuplicates(append(extraDirs,
		"build",
		"build/Release",
		"build/Debug",
		DefaultPluginDir,
		"/usr/lib64/mysql/plugin",
		"/usr/local/mysql/lib/plugin",
	))

	for _, dir := range dirs {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", errors.Errorf("%s plugin shared object not found", engine)
}
