package topology

import (
	"fmt"
	"net"
	"strconv"
)

// NodeRole identifies a node's role within the replication group.
type NodeRole string

const (
	RolePrimary   NodeRole = "primary"
	RoleSecondary NodeRole = "secondary"
)

// DeploymentKind identifies how a node's database process is managed.
type DeploymentKind string

const (
	// KindLocalService is a local server managed through the system
	// service manager.
	KindLocalService DeploymentKind = "local_service"

	// KindLocalBinary is a local server launched directly from a binary
	// installation.
	KindLocalBinary DeploymentKind = "local_binary"

	// KindContainer is a server running inside a managed container.
	KindContainer DeploymentKind = "container"

	// KindRemoteSSH is a server on a remote machine administered over SSH.
	KindRemoteSSH DeploymentKind = "remote_ssh"
)

// SSHParams holds the connection parameters for KindRemoteSSH nodes.
type SSHParams struct {
	User    string `json:"user"`
	KeyPath string `json:"keyPath,omitempty"`
	Port    int    `json:"port"`
}

// ContainerParams holds the runtime parameters for KindContainer nodes.
// Address is the node's address on the cluster network, assigned by the
// topology rather than the container runtime.
type ContainerParams struct {
	Name    string `json:"name"`
	Network string `json:"network"`
	Address string `json:"address"`
}

// BinaryParams holds the filesystem paths for KindLocalBinary nodes.
type BinaryParams struct {
	ServerPath string `json:"serverPath"`
	DataDir    string `json:"dataDir"`
	ConfigFile string `json:"configFile"`
}

// NodeDescriptor describes a single database node. Descriptors are created
// by the topology and treated as immutable afterwards; mutating operations
// replace the descriptor rather than editing it in place.
type NodeDescriptor struct {
	ID       int            `json:"id"`
	Hostname string         `json:"hostname"`
	Role     NodeRole       `json:"role"`
	Kind     DeploymentKind `json:"kind"`

	Host          string `json:"host"`
	Port          int    `json:"port"`
	AdminUser     string `json:"adminUser"`
	AdminPassword string `json:"adminPassword"`

	SSH       *SSHParams       `json:"ssh,omitempty"`
	Container *ContainerParams `json:"container,omitempty"`
	Binary    *BinaryParams    `json:"binary,omitempty"`

	// ServerID is the replication server id, defaulted from ID.
	ServerID int `json:"serverId"`

	// GroupAddress is the address this node advertises to its peers for
	// group membership traffic.
	GroupAddress string `json:"groupAddress"`
}

// AdminURI returns the connection URI used by the admin shell.
func (n *NodeDescriptor) AdminURI() string {
	return fmt.Sprintf("%s:%s@%s", n.AdminUser, n.AdminPassword, net.JoinHostPort(n.Host, strconv.Itoa(n.Port)))
}

// Endpoint returns the host:port the node serves clients on.
func (n *NodeDescriptor) Endpoint() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Clone returns a deep copy of the descriptor.
func (n *NodeDescriptor) Clone() *NodeDescriptor {
	out := *n
	if n.SSH != nil {
		ssh := *n.SSH
		out.SSH = &ssh
	}
	if n.Container != nil {
		c := *n.Container
		out.Container = &c
	}
	if n.Binary != nil {
		b := *n.Binary
		out.Binary = &b
	}
	return &out
}
