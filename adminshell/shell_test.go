package adminshell_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replbridge/replbridge/adminshell"
	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/testutils"
	"github.com/replbridge/replbridge/topology"
)

func testPrimary() *topology.NodeDescriptor {
	return &topology.NodeDescriptor{
		ID:            1,
		Role:          topology.RolePrimary,
		Kind:          topology.KindLocalService,
		Host:          "127.0.0.1",
		Port:          3306,
		AdminUser:     "root",
		AdminPassword: "secret",
		GroupAddress:  "primary-host:3306",
	}
}

func testSecondary() *topology.NodeDescriptor {
	return &topology.NodeDescriptor{
		ID:            2,
		Role:          topology.RoleSecondary,
		Kind:          topology.KindContainer,
		Host:          "127.0.0.1",
		Port:          33062,
		AdminUser:     "root",
		AdminPassword: "secret",
		GroupAddress:  "secondary-1:3306",
		Container:     &topology.ContainerParams{Name: "secondary-1"},
	}
}

func newTestShell(runner driver.CommandRunner) *adminshell.Shell {
	return adminshell.NewShell(&adminshell.Options{
		Runner:      runner,
		ClusterName: "testcluster",
	})
}

func TestConfigureInstanceCommandShape(t *testing.T) {
	runner := testutils.NewFakeRunner()
	shell := newTestShell(runner)

	_, err := shell.ConfigureInstance(context.Background(), testSecondary())
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "mysqlsh root:secret@127.0.0.1:33062 --js --no-wizard -e")
	assert.Contains(t, calls[0], "dba.configureInstance('root:secret@127.0.0.1:33062')")
	assert.Contains(t, calls[0], "already been configured")
}

func TestConfigureInstanceFailure(t *testing.T) {
	runner := testutils.NewFakeRunner()
	runner.Handle("configureInstance", &driver.CommandResult{
		ExitCode: 1,
		Stderr:   "ERROR: Access denied for user 'root'\n",
	})
	shell := newTestShell(runner)

	_, err := shell.ConfigureInstance(context.Background(), testSecondary())
	require.Error(t, err)
	assert.ErrorIs(t, err, adminshell.ErrShellFailed)
	assert.Contains(t, err.Error(), "Access denied")
}

func TestEnsureClusterAnchorsGroupAddress(t *testing.T) {
	runner := testutils.NewFakeRunner()
	shell := newTestShell(runner)

	_, err := shell.EnsureCluster(context.Background(), testPrimary())
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "dba.getCluster('testcluster')")
	assert.Contains(t, calls[0], "dba.createCluster('testcluster'")
	assert.Contains(t, calls[0], "localAddress: 'primary-host:3306'")
	assert.Contains(t, calls[0], "standalone instance")
}

func TestAddInstanceConnectsThroughPrimary(t *testing.T) {
	runner := testutils.NewFakeRunner()
	shell := newTestShell(runner)

	_, err := shell.AddInstance(context.Background(), testPrimary(), testSecondary())
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	// the script runs against the primary but names the joiner
	assert.Contains(t, calls[0], "mysqlsh root:secret@127.0.0.1:3306 --js")
	assert.Contains(t, calls[0], "cluster.addInstance('root:secret@127.0.0.1:33062'")
	assert.Contains(t, calls[0], "recoveryMethod: 'clone'")
	assert.Contains(t, calls[0], "localAddress: 'secondary-1:3306'")
	assert.Contains(t, calls[0], "already a member")
}

func TestRemoveInstanceIsForced(t *testing.T) {
	runner := testutils.NewFakeRunner()
	shell := newTestShell(runner)

	err := shell.RemoveInstance(context.Background(), testPrimary(), testSecondary())
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "cluster.removeInstance('root:secret@127.0.0.1:33062', {force: true})")
}

func TestClusterStatusReturnsShellOutput(t *testing.T) {
	statusJSON := `{"clusterName": "testcluster", "defaultReplicaSet": {"status": "OK"}}`

	runner := testutils.NewFakeRunner()
	runner.Handle("cluster.status()", &driver.CommandResult{ExitCode: 0, Stdout: statusJSON + "\n"})
	shell := newTestShell(runner)

	out, err := shell.ClusterStatus(context.Background(), testPrimary())
	require.NoError(t, err)
	assert.Equal(t, statusJSON, out)
}

func TestRunSQLUsesStatementMode(t *testing.T) {
	runner := testutils.NewFakeRunner()
	runner.Handle("SHOW PLUGINS", &driver.CommandResult{
		ExitCode: 0,
		Stdout:   "lineairdb\tACTIVE\tSTORAGE ENGINE\n",
	})
	shell := newTestShell(runner)

	res, err := shell.RunSQL(context.Background(), "root:secret@127.0.0.1:3306",
		"SHOW PLUGINS WHERE Name='lineairdb';")
	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, 1, runner.CallCount("--sql --no-wizard -e SHOW PLUGINS WHERE Name='lineairdb';"))
}
