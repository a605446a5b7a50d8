package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replbridge/replbridge/adminshell"
	"github.com/replbridge/replbridge/convergence"
	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/testutils"
	"github.com/replbridge/replbridge/topology"
)

// fakeDriver is a scripted NodeDriver that records lifecycle calls into a
// shared, ordered trace.
type fakeDriver struct {
	node      *topology.NodeDescriptor
	cluster   *fakeCluster
	failStart bool
	failStop  bool
}

type fakeCluster struct {
	mu    sync.Mutex
	trace []string

	failStartIDs map[int]bool
	failStopIDs  map[int]bool
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		failStartIDs: map[int]bool{},
		failStopIDs:  map[int]bool{},
	}
}

func (c *fakeCluster) record(event string) {
	c.mu.Lock()
	c.trace = append(c.trace, event)
	c.mu.Unlock()
}

func (c *fakeCluster) events(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.trace {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeCluster) factory(node *topology.NodeDescriptor) (driver.NodeDriver, error) {
	return &fakeDriver{
		node:      node,
		cluster:   c,
		failStart: c.failStartIDs[node.ID],
		failStop:  c.failStopIDs[node.ID],
	}, nil
}

func (d *fakeDriver) Kind() topology.DeploymentKind     { return d.node.Kind }
func (d *fakeDriver) IsRunning(context.Context) (bool, error) { return true, nil }
func (d *fakeDriver) IsReachable(context.Context) bool  { return true }

func (d *fakeDriver) Start(context.Context) (string, error) {
	d.cluster.record("start-" + itoa(d.node.ID))
	if d.failStart {
		return "", errors.Wrapf(driver.ErrStartTimeout, "node %d", d.node.ID)
	}
	return "started", nil
}

func (d *fakeDriver) Stop(context.Context) (string, error) {
	d.cluster.record("stop-" + itoa(d.node.ID))
	if d.failStop {
		return "", errors.Wrapf(driver.ErrStopTimeout, "node %d", d.node.ID)
	}
	return "stopped", nil
}

func (d *fakeDriver) RunAdminCommand(context.Context, string) (*driver.CommandResult, error) {
	return &driver.CommandResult{ExitCode: 0}, nil
}

func (d *fakeDriver) CopyFileIn(context.Context, string, string) error { return nil }

func itoa(n int) string {
	return string(rune('0' + n))
}

func newTestTopology(t *testing.T, secondaries int) *topology.Topology {
	topo, err := topology.New(
		topology.DefaultSettings("testcluster", t.TempDir()),
		topology.KindLocalService)
	require.NoError(t, err)
	for i := 0; i < secondaries; i++ {
		_, err := topo.AddSecondary(topology.SecondarySpec{})
		require.NoError(t, err)
	}
	return topo
}

func newTestOrchestrator(topo *topology.Topology, cluster *fakeCluster, runner driver.CommandRunner) *Orchestrator {
	shell := adminshell.NewShell(&adminshell.Options{
		Runner:      runner,
		ClusterName: "testcluster",
	})
	conv := convergence.New(&convergence.Options{
		Shell: shell,
		Probe: func(context.Context, string) bool { return true },
	})

	o := New(&Options{
		Topology:    topo,
		Convergence: conv,
		NewDriver:   cluster.factory,
	})
	o.primarySettle = 0
	o.secondarySettle = 0
	o.cooldown = 0
	return o
}

func TestStartClusterPrimaryFailureIsFatal(t *testing.T) {
	cluster := newFakeCluster()
	cluster.failStartIDs[1] = true
	topo := newTestTopology(t, 3)

	o := newTestOrchestrator(topo, cluster, testutils.NewFakeRunner())
	rep := o.StartCluster(context.Background(), true)

	assert.False(t, rep.Succeeded)
	require.NotNil(t, rep.Child("start-primary"))
	assert.False(t, rep.Child("start-primary").Succeeded)
	assert.Contains(t, rep.Child("start-primary").Detail, "started but not responding")

	// no secondary was attempted
	assert.Nil(t, rep.Child("start-secondaries"))
	assert.Empty(t, cluster.events("start-2"))
	assert.Empty(t, cluster.events("start-3"))
	assert.Empty(t, cluster.events("start-4"))
	assert.Equal(t, StateNotStarted, o.State())
}

func TestStartClusterSecondaryFailureIsIsolated(t *testing.T) {
	cluster := newFakeCluster()
	cluster.failStartIDs[3] = true
	topo := newTestTopology(t, 3)

	o := newTestOrchestrator(topo, cluster, testutils.NewFakeRunner())
	rep := o.StartCluster(context.Background(), false)

	// siblings of the failed secondary were still attempted
	assert.Len(t, cluster.events("start-2"), 1)
	assert.Len(t, cluster.events("start-3"), 1)
	assert.Len(t, cluster.events("start-4"), 1)

	assert.True(t, rep.Child("start-primary").Succeeded)
	secRep := rep.Child("start-secondaries")
	require.NotNil(t, secRep)
	assert.False(t, secRep.Succeeded)
	assert.True(t, secRep.Child("start-secondary-2").Succeeded)
	assert.False(t, secRep.Child("start-secondary-3").Succeeded)
	assert.True(t, secRep.Child("start-secondary-4").Succeeded)

	assert.False(t, rep.Succeeded)
	assert.Equal(t, StatePartiallyDegraded, o.State())
}

func TestStartClusterReachesReady(t *testing.T) {
	cluster := newFakeCluster()
	topo := newTestTopology(t, 2)

	o := newTestOrchestrator(topo, cluster, testutils.NewFakeRunner())
	rep := o.StartCluster(context.Background(), false)

	assert.True(t, rep.Succeeded)
	assert.Equal(t, StateReady, o.State())
}

func TestStartClusterConvergesMembership(t *testing.T) {
	cluster := newFakeCluster()
	runner := testutils.NewFakeRunner()
	topo := newTestTopology(t, 2)

	o := newTestOrchestrator(topo, cluster, runner)
	rep := o.StartCluster(context.Background(), true)

	assert.True(t, rep.Succeeded)
	assert.NotNil(t, rep.Child("converge-membership"))
	assert.Equal(t, 1, runner.CallCount("createCluster"))
	assert.Equal(t, 2, runner.CallCount("addInstance"))
	assert.Equal(t, StateReady, o.State())
}

func TestStopClusterStopsSecondariesFirst(t *testing.T) {
	cluster := newFakeCluster()
	topo := newTestTopology(t, 2)

	o := newTestOrchestrator(topo, cluster, testutils.NewFakeRunner())
	rep := o.StopCluster(context.Background())

	assert.True(t, rep.Succeeded)
	assert.Equal(t, StateStopped, o.State())

	cluster.mu.Lock()
	trace := append([]string(nil), cluster.trace...)
	cluster.mu.Unlock()
	require.Len(t, trace, 3)
	assert.Equal(t, "stop-1", trace[len(trace)-1])
}

func TestRestartClusterSkipsConvergence(t *testing.T) {
	cluster := newFakeCluster()
	runner := testutils.NewFakeRunner()
	topo := newTestTopology(t, 2)

	o := newTestOrchestrator(topo, cluster, runner)
	rep := o.RestartCluster(context.Background())

	assert.True(t, rep.Succeeded)
	assert.NotNil(t, rep.Find("stop-cluster"))
	assert.NotNil(t, rep.Find("start-cluster"))
	assert.Nil(t, rep.Find("converge-membership"))
	assert.Equal(t, 0, runner.CallCount("addInstance"))
	assert.Equal(t, StateReady, o.State())
}

func TestStatusProbesEveryNode(t *testing.T) {
	cluster := newFakeCluster()
	topo := newTestTopology(t, 2)

	o := newTestOrchestrator(topo, cluster, testutils.NewFakeRunner())
	statuses := o.Status(context.Background())

	require.Len(t, statuses, 3)
	assert.Equal(t, 1, statuses[0].Node.ID)
	for _, st := range statuses {
		assert.NoError(t, st.Err)
		assert.True(t, st.Running)
		assert.True(t, st.Reachable)
	}
}
