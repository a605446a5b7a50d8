package topology

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/replbridge/replbridge/utils/netutils"
)

var (
	// ErrNodeNotFound indicates a node id that is not present in the
	// topology.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNodeID indicates two descriptors sharing an id.
	ErrDuplicateNodeID = errors.New("duplicate node id")

	// ErrMissingPrimary indicates a topology without exactly one primary.
	ErrMissingPrimary = errors.New("topology has no primary node")
)

const (
	primaryNodeID = 1

	// defaultServerPort is the port the database serves on inside its own
	// network namespace.
	defaultServerPort = 3306

	// defaultGroupPort is the port nodes advertise for group membership
	// traffic.
	defaultGroupPort = 3306
)

// Settings are the cluster-wide options shared by every node.
type Settings struct {
	ClusterName string `json:"clusterName"`

	NetworkName   string `json:"networkName"`
	NetworkSubnet string `json:"networkSubnet"`
	NetworkBase   string `json:"networkBase"`
	BasePort      int    `json:"basePort"`

	AdminUser     string `json:"adminUser"`
	AdminPassword string `json:"adminPassword"`
	ServerVersion string `json:"serverVersion"`

	ContainerImage string `json:"containerImage"`

	BaseDir   string `json:"baseDir"`
	ConfigDir string `json:"configDir"`
	DataDir   string `json:"dataDir"`
	LogsDir   string `json:"logsDir"`

	// AdminShellPath overrides the admin shell binary used for group
	// administration; empty means resolve from PATH.
	AdminShellPath string `json:"adminShellPath,omitempty"`
}

// DefaultSettings returns the settings a freshly created cluster starts
// from, rooted at baseDir.
func DefaultSettings(clusterName string, baseDir string) Settings {
	return Settings{
		ClusterName:    clusterName,
		NetworkName:    "replbridge-net",
		NetworkSubnet:  "172.20.0.0/16",
		NetworkBase:    "172.20.0",
		BasePort:       33060,
		AdminUser:      "root",
		AdminPassword:  "replbridge",
		ServerVersion:  "8.0.43",
		ContainerImage: "mysql/mysql-server:8.0.43",
		BaseDir:        baseDir,
		ConfigDir:      baseDir + "/config",
		DataDir:        baseDir + "/data",
		LogsDir:        baseDir + "/logs",
	}
}

// Topology owns the primary descriptor, the ordered secondary descriptors
// and the cluster settings. All mutations go through its methods under the
// single-writer lock; accessors hand out deep copies so callers never alias
// the owned descriptors.
type Topology struct {
	mu          sync.RWMutex
	settings    Settings
	primary     *NodeDescriptor
	secondaries []*NodeDescriptor
}

// SecondarySpec describes a secondary to add. An explicit Kind wins;
// otherwise a host plus SSH user selects KindRemoteSSH and everything else
// becomes a container node.
type SecondarySpec struct {
	Kind       DeploymentKind
	Host       string
	SSHUser    string
	SSHKeyPath string
	SSHPort    int
}

// New creates a topology with a primary of the given kind and no
// secondaries. The primary always has id 1.
func New(settings Settings, primaryKind DeploymentKind) (*Topology, error) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		addr, addrErr := netutils.GetAdvertiseAddress("")
		if addrErr != nil {
			return nil, errors.Wrap(addrErr, "failed to determine primary advertise address")
		}
		hostname = addr
	}

	primary := &NodeDescriptor{
		ID:            primaryNodeID,
		Hostname:      hostname,
		Role:          RolePrimary,
		Kind:          primaryKind,
		Host:          "127.0.0.1",
		Port:          defaultServerPort,
		AdminUser:     settings.AdminUser,
		AdminPassword: settings.AdminPassword,
		ServerID:      primaryNodeID,
		GroupAddress:  fmt.Sprintf("%s:%d", hostname, defaultGroupPort),
	}

	if primaryKind == KindLocalBinary {
		primary.Binary = &BinaryParams{
			ServerPath: "mysqld",
			DataDir:    settings.DataDir + "/primary",
			ConfigFile: settings.ConfigDir + "/primary.cnf",
		}
	}

	return &Topology{
		settings: settings,
		primary:  primary,
	}, nil
}

// Settings returns a copy of the cluster settings.
func (t *Topology) Settings() Settings {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.settings
}

// Primary returns a copy of the primary descriptor.
func (t *Topology) Primary() *NodeDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.primary.Clone()
}

// Secondaries returns copies of the secondary descriptors in order.
func (t *Topology) Secondaries() []*NodeDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*NodeDescriptor, 0, len(t.secondaries))
	for _, n := range t.secondaries {
		out = append(out, n.Clone())
	}
	return out
}

// Nodes returns the primary followed by the secondaries.
func (t *Topology) Nodes() []*NodeDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*NodeDescriptor, 0, len(t.secondaries)+1)
	out = append(out, t.primary.Clone())
	for _, n := range t.secondaries {
		out = append(out, n.Clone())
	}
	return out
}

// SecondaryCount returns the number of secondaries.
func (t *Topology) SecondaryCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.secondaries)
}

// SecondariesOfKind returns copies of secondaries of one deployment kind,
// preserving order.
func (t *Topology) SecondariesOfKind(kind DeploymentKind) []*NodeDescriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*NodeDescriptor
	for _, n := range t.secondaries {
		if n.Kind == kind {
			out = append(out, n.Clone())
		}
	}
	return out
}

// FindSecondary returns a copy of the secondary with the given id.
func (t *Topology) FindSecondary(id int) (*NodeDescriptor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range t.secondaries {
		if n.ID == id {
			return n.Clone(), nil
		}
	}
	return nil, errors.Wrapf(ErrNodeNotFound, "secondary %d", id)
}

// AddSecondary assigns the next id, chooses the deployment kind and its
// defaults, appends the node and returns a copy of the new descriptor.
func (t *Topology) AddSecondary(spec SecondarySpec) (*NodeDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextIDLocked()

	kind := spec.Kind
	if kind == "" {
		if spec.Host != "" && spec.SSHUser != "" {
			kind = KindRemoteSSH
		} else {
			kind = KindContainer
		}
	}

	var node *NodeDescriptor
	switch kind {
	case KindContainer:
		containerName := fmt.Sprintf("secondary-%d", id-1)
		node = &NodeDescriptor{
			ID:            id,
			Hostname:      containerName,
			Role:          RoleSecondary,
			Kind:          KindContainer,
			Host:          "127.0.0.1",
			Port:          t.settings.BasePort + id,
			AdminUser:     t.settings.AdminUser,
			AdminPassword: t.settings.AdminPassword,
			Container: &ContainerParams{
				Name:    containerName,
				Network: t.settings.NetworkName,
				Address: fmt.Sprintf("%s.%d", t.settings.NetworkBase, 10+id),
			},
			ServerID:     id,
			GroupAddress: fmt.Sprintf("%s:%d", containerName, defaultGroupPort),
		}

	case KindRemoteSSH:
		sshPort := spec.SSHPort
		if sshPort == 0 {
			sshPort = 22
		}
		hostname := spec.Host
		if hostname == "" {
			hostname = fmt.Sprintf("secondary-%d", id-1)
		}
		node = &NodeDescriptor{
			ID:            id,
			Hostname:      hostname,
			Role:          RoleSecondary,
			Kind:          KindRemoteSSH,
			Host:          spec.Host,
			Port:          defaultServerPort,
			AdminUser:     t.settings.AdminUser,
			AdminPassword: t.settings.AdminPassword,
			SSH: &SSHParams{
				User:    spec.SSHUser,
				KeyPath: spec.SSHKeyPath,
				Port:    sshPort,
			},
			ServerID:     id,
			GroupAddress: fmt.Sprintf("%s:%d", hostname, defaultGroupPort),
		}

	default:
		return nil, errors.Errorf("deployment kind %s is not valid for secondaries", kind)
	}

	t.secondaries = append(t.secondaries, node)

	if err := t.validateLocked(); err != nil {
		t.secondaries = t.secondaries[:len(t.secondaries)-1]
		return nil, err
	}

	return node.Clone(), nil
}

// RemoveSecondary removes the secondary with the given id and returns a
// copy of the removed descriptor. The node itself is not stopped and is not
// removed from the replication group; callers must do that first.
func (t *Topology) RemoveSecondary(id int) (*NodeDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, n := range t.secondaries {
		if n.ID == id {
			removed := n.Clone()
			t.secondaries = append(t.secondaries[:i], t.secondaries[i+1:]...)
			return removed, nil
		}
	}
	return nil, errors.Wrapf(ErrNodeNotFound, "secondary %d", id)
}

// GroupSeeds returns the comma-joined group addresses of every node.
func (t *Topology) GroupSeeds() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seeds := t.primary.GroupAddress
	for _, n := range t.secondaries {
		seeds += "," + n.GroupAddress
	}
	return seeds
}

// Validate checks the topology invariants: exactly one primary with id 1,
// unique ids, and strictly increasing secondary ids.
func (t *Topology) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.validateLocked()
}

func (t *Topology) validateLocked() error {
	if t.primary == nil || t.primary.Role != RolePrimary {
		return ErrMissingPrimary
	}

	seen := map[int]bool{t.primary.ID: true}
	lastID := 0
	for _, n := range t.secondaries {
		if n.Role != RoleSecondary {
			return errors.Errorf("node %d has role %s, want %s", n.ID, n.Role, RoleSecondary)
		}
		if seen[n.ID] {
			return errors.Wrapf(ErrDuplicateNodeID, "node %d", n.ID)
		}
		seen[n.ID] = true
		if n.ID <= lastID {
			return errors.Errorf("secondary ids must be strictly increasing, got %d after %d", n.ID, lastID)
		}
		lastID = n.ID
	}
	return nil
}

// nextIDLocked returns one past the highest assigned id. Removed ids are
// never reused so that secondary ids stay strictly increasing.
func (t *Topology) nextIDLocked() int {
	next := t.primary.ID + 1
	for _, n := range t.secondaries {
		if n.ID >= next {
			next = n.ID + 1
		}
	}
	return next
}
