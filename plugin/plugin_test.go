package plugin_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replbridge/replbridge/adminshell"
	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/plugin"
	"github.com/replbridge/replbridge/testutils"
	"github.com/replbridge/replbridge/topology"
)

func newTestManager(t *testing.T, runner driver.CommandRunner, secondaries int) (*plugin.Manager, *topology.Topology) {
	topo, err := topology.New(
		topology.DefaultSettings("testcluster", t.TempDir()),
		topology.KindLocalService)
	require.NoError(t, err)
	for i := 0; i < secondaries; i++ {
		_, err := topo.AddSecondary(topology.SecondarySpec{})
		require.NoError(t, err)
	}

	shell := adminshell.NewShell(&adminshell.Options{
		Runner:      runner,
		ClusterName: "testcluster",
	})
	mgr := plugin.New(&plugin.Options{
		Topology:      topo,
		Shell:         shell,
		DriverOptions: driver.Options{Runner: runner},
		Probe:         func(context.Context, string) bool { return true },
	})
	return mgr, topo
}

func writeTestPlugin(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "ha_lineairdb.so")
	require.NoError(t, os.WriteFile(path, []byte("\x7fELF"), 0644))
	return path
}

func TestCheckReportsPerNodeAvailability(t *testing.T) {
	runner := testutils.NewFakeRunner()
	// the primary has the plugin, the secondary does not
	runner.Handle("root:replbridge@127.0.0.1:3306 --sql", &driver.CommandResult{
		ExitCode: 0,
		Stdout:   "lineairdb\tACTIVE\tSTORAGE ENGINE\n",
	})
	runner.Handle("root:replbridge@127.0.0.1:33062 --sql", &driver.CommandResult{
		ExitCode: 0,
		Stdout:   "",
	})

	mgr, _ := newTestManager(t, runner, 1)
	rep := mgr.Check(context.Background())

	assert.False(t, rep.Succeeded)
	require.NotNil(t, rep.Child("check-node-1"))
	assert.True(t, rep.Child("check-node-1").Succeeded)
	require.NotNil(t, rep.Child("check-node-2"))
	assert.False(t, rep.Child("check-node-2").Succeeded)
}

func TestInstallCopiesAndLoadsEverywhere(t *testing.T) {
	runner := testutils.NewFakeRunner()
	mgr, _ := newTestManager(t, runner, 2)
	path := writeTestPlugin(t)

	rep := mgr.Install(context.Background(), path)

	assert.True(t, rep.Succeeded)
	// primary gets a local copy, each container secondary a docker cp
	assert.Equal(t, 1, runner.CallCount("cp "+path+" /usr/lib/mysql/plugin/ha_lineairdb.so"))
	assert.Equal(t, 1, runner.CallCount("docker cp "+path+" secondary-1:/usr/lib/mysql/plugin/ha_lineairdb.so"))
	assert.Equal(t, 1, runner.CallCount("docker cp "+path+" secondary-2:/usr/lib/mysql/plugin/ha_lineairdb.so"))
	assert.Equal(t, 3, runner.CallCount("INSTALL PLUGIN lineairdb SONAME 'ha_lineairdb.so';"))
}

func TestInstallTreatsDuplicateAsSuccess(t *testing.T) {
	runner := testutils.NewFakeRunner()
	runner.Handle("INSTALL PLUGIN", &driver.CommandResult{
		ExitCode: 1,
		Stderr:   "ERROR 1125 (HY000): Function 'lineairdb' already exists\n",
	})

	mgr, _ := newTestManager(t, runner, 1)
	rep := mgr.Install(context.Background(), writeTestPlugin(t))

	assert.True(t, rep.Succeeded)
	require.NotNil(t, rep.Child("install-node-1"))
	assert.Contains(t, rep.Child("install-node-1").Detail, "already installed")
}

func TestInstallMissingFileFailsFast(t *testing.T) {
	runner := testutils.NewFakeRunner()
	mgr, _ := newTestManager(t, runner, 1)

	rep := mgr.Install(context.Background(), "/nonexistent/ha_lineairdb.so")

	assert.False(t, rep.Succeeded)
	assert.Empty(t, runner.Calls())
}

func TestInstallSkipsUnreachableNode(t *testing.T) {
	runner := testutils.NewFakeRunner()
	topo, err := topology.New(
		topology.DefaultSettings("testcluster", t.TempDir()),
		topology.KindLocalService)
	require.NoError(t, err)
	_, err = topo.AddSecondary(topology.SecondarySpec{})
	require.NoError(t, err)

	shell := adminshell.NewShell(&adminshell.Options{
		Runner:      runner,
		ClusterName: "testcluster",
	})
	mgr := plugin.New(&plugin.Options{
		Topology:      topo,
		Shell:         shell,
		DriverOptions: driver.Options{Runner: runner},
		Probe: func(_ context.Context, endpoint string) bool {
			return endpoint == "127.0.0.1:3306"
		},
	})

	rep := mgr.Install(context.Background(), writeTestPlugin(t))

	assert.False(t, rep.Succeeded)
	assert.True(t, rep.Child("install-node-1").Succeeded)
	assert.Contains(t, rep.Child("install-node-2").Detail, "not reachable")
	assert.Equal(t, 0, runner.CallCount("docker cp"))
}

func TestFindPluginLocatesSharedObject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ha_lineairdb.so")
	require.NoError(t, os.WriteFile(path, []byte{0}, 0644))

	found, err := plugin.FindPlugin("lineairdb", dir)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	_, err = plugin.FindPlugin("lineairdb", t.TempDir())
	assert.Error(t, err)
}
