package topology

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestTopology(t *testing.T) *Topology {
	settings := DefaultSettings("testcluster", t.TempDir())
	topo, err := New(settings, KindLocalService)
	require.NoError(t, err)
	return topo
}

func TestNewTopologyHasSinglePrimary(t *testing.T) {
	topo := makeTestTopology(t)

	primary := topo.Primary()
	assert.Equal(t, 1, primary.ID)
	assert.Equal(t, RolePrimary, primary.Role)
	assert.NotEmpty(t, primary.GroupAddress)
	assert.NoError(t, topo.Validate())
}

func TestAddSecondaryDefaultsToContainer(t *testing.T) {
	topo := makeTestTopology(t)

	node, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)

	assert.Equal(t, 2, node.ID)
	assert.Equal(t, KindContainer, node.Kind)
	require.NotNil(t, node.Container)
	assert.Equal(t, "secondary-1", node.Container.Name)
	assert.Equal(t, "172.20.0.12", node.Container.Address)
	assert.Equal(t, 33062, node.Port)
	assert.Equal(t, "secondary-1:3306", node.GroupAddress)
	assert.NoError(t, topo.Validate())
}

func TestAddSecondarySelectsRemoteSSH(t *testing.T) {
	topo := makeTestTopology(t)

	node, err := topo.AddSecondary(SecondarySpec{
		Host:       "192.168.1.10",
		SSHUser:    "dbadmin",
		SSHKeyPath: "/home/dbadmin/.ssh/id_ed25519",
	})
	require.NoError(t, err)

	assert.Equal(t, KindRemoteSSH, node.Kind)
	assert.Equal(t, "192.168.1.10", node.Host)
	require.NotNil(t, node.SSH)
	assert.Equal(t, "dbadmin", node.SSH.User)
	assert.Equal(t, 22, node.SSH.Port)
}

func TestRemoveSecondaryUnknownID(t *testing.T) {
	topo := makeTestTopology(t)
	_, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)

	before := topo.SecondaryCount()
	_, err = topo.RemoveSecondary(99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNodeNotFound))
	assert.Equal(t, before, topo.SecondaryCount(), "failed removal must leave topology unchanged")
}

func TestAddRemoveRoundTripsCount(t *testing.T) {
	topo := makeTestTopology(t)
	_, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)
	before := topo.SecondaryCount()

	node, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)
	_, err = topo.RemoveSecondary(node.ID)
	require.NoError(t, err)

	assert.Equal(t, before, topo.SecondaryCount())
	assert.NoError(t, topo.Validate())
}

func TestIDsNeverReused(t *testing.T) {
	topo := makeTestTopology(t)

	first, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)
	second, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)

	_, err = topo.RemoveSecondary(second.ID)
	require.NoError(t, err)

	third, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)
	assert.Greater(t, third.ID, second.ID, "removed ids must not be reassigned")
	assert.Greater(t, third.ID, first.ID)
}

func TestSecondaryIDsStrictlyIncreasing(t *testing.T) {
	topo := makeTestTopology(t)

	var lastID int
	for i := 0; i < 5; i++ {
		node, err := topo.AddSecondary(SecondarySpec{})
		require.NoError(t, err)
		assert.Greater(t, node.ID, lastID)
		lastID = node.ID
	}
	assert.NoError(t, topo.Validate())
}

func TestGroupSeedsCoverAllNodes(t *testing.T) {
	topo := makeTestTopology(t)
	_, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)
	_, err = topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)

	seeds := topo.GroupSeeds()
	assert.Contains(t, seeds, topo.Primary().GroupAddress)
	assert.Contains(t, seeds, "secondary-1:3306")
	assert.Contains(t, seeds, "secondary-2:3306")
}

func TestAccessorsReturnCopies(t *testing.T) {
	topo := makeTestTopology(t)
	_, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)

	nodes := topo.Secondaries()
	nodes[0].Container.Name = "clobbered"

	fresh := topo.Secondaries()
	assert.Equal(t, "secondary-1", fresh[0].Container.Name)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	topo := makeTestTopology(t)

	_, err := topo.AddSecondary(SecondarySpec{
		Host:       "10.0.0.7",
		SSHUser:    "dbadmin",
		SSHKeyPath: "/keys/secondary.pem",
		SSHPort:    2222,
	})
	require.NoError(t, err)
	_, err = topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), TopologyFileName)
	require.NoError(t, topo.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, topo.Settings(), loaded.Settings())
	assert.Equal(t, topo.Primary(), loaded.Primary())
	require.Equal(t, topo.SecondaryCount(), loaded.SecondaryCount())

	want := topo.Secondaries()
	got := loaded.Secondaries()
	for i := range want {
		assert.Equal(t, want[i], got[i])
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	topo := makeTestTopology(t)
	node, err := topo.AddSecondary(SecondarySpec{})
	require.NoError(t, err)

	// forge a duplicate by writing and editing the raw slice
	topo.mu.Lock()
	dup := node.Clone()
	topo.secondaries = append(topo.secondaries, dup)
	topo.mu.Unlock()

	err = topo.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateNodeID))
}
