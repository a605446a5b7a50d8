package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/replbridge/replbridge/topology"
)

// ComposeFileName is the container deployment manifest, written under the
// cluster base directory.
const ComposeFileName = "docker-compose-secondaries.yml"

type composeDocument struct {
	Version  string                    `yaml:"version"`
	Services map[string]composeService `yaml:"services"`
	Networks map[string]composeNetwork `yaml:"networks"`
}

type composeService struct {
	Image         string                           `yaml:"image"`
	ContainerName string                           `yaml:"container_name"`
	Hostname      string                           `yaml:"hostname"`
	Environment   map[string]string                `yaml:"environment"`
	Ports         []string                         `yaml:"ports"`
	Volumes       []string                         `yaml:"volumes"`
	Networks      map[string]composeServiceNetwork `yaml:"networks"`
	Command       string                           `yaml:"command"`
	Restart       string                           `yaml:"restart"`
	Healthcheck   composeHealthcheck               `yaml:"healthcheck"`
}

type composeServiceNetwork struct {
	IPv4Address string `yaml:"ipv4_address"`
}

type composeNetwork struct {
	Driver string      `yaml:"driver"`
	IPAM   composeIPAM `yaml:"ipam"`
}

type composeIPAM struct {
	Config []composeSubnet `yaml:"config"`
}

type composeSubnet struct {
	Subnet string `yaml:"subnet"`
}

type composeHealthcheck struct {
	Test     []string `yaml:"test"`
	Interval string   `yaml:"interval"`
	Timeout  string   `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

// Generator renders the deployment artifacts derived from a topology: the
// container compose manifest and per-node server config files. Rendering
// is pure; the Write methods put files under the cluster base directory.
type Generator struct {
	settings topology.Settings
	logger   *zap.Logger
}

type Options struct {
	Logger *zap.Logger
}

func NewGenerator(settings topology.Settings, opts *Options) *Generator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		settings: settings,
		logger:   logger.Named("manifest"),
	}
}

// ComposePath returns where the compose manifest lives for this cluster.
func (g *Generator) ComposePath() string {
	return filepath.Join(g.settings.BaseDir, ComposeFileName)
}

// RenderCompose produces the compose document for the container
// secondaries. Non-container nodes never appear in it.
func (g *Generator) RenderCompose(nodes []*topology.NodeDescriptor) ([]byte, error) {
	services := map[string]composeService{}

	for _, node := range nodes {
		if node.Kind != topology.KindContainer || node.Container == nil {
			continue
		}

		name := node.Container.Name
		services[name] = composeService{
			Image:         g.settings.ContainerImage,
			ContainerName: name,
			Hostname:      name,
			Environment: map[string]string{
				"MYSQL_ROOT_PASSWORD": g.settings.AdminPassword,
				"MYSQL_SERVER_ID":     fmt.Sprintf("%d", node.ServerID),
			},
			Ports: []string{fmt.Sprintf("%d:3306", node.Port)},
			Volumes: []string{
				fmt.Sprintf("./config/%s:/etc/mysql/conf.d/custom.cnf", serverConfigFileName(node)),
				fmt.Sprintf("./data/secondary%d:/var/lib/mysql", node.ID-1),
			},
			Networks: map[string]composeServiceNetwork{
				g.settings.NetworkName: {IPv4Address: node.Container.Address},
			},
			Command: fmt.Sprintf(
				"mysqld --server-id=%d --log-bin=mysql-bin --gtid-mode=ON "+
					"--enforce-gtid-consistency=ON --binlog-format=ROW --relay-log=mysql-relay-bin",
				node.ServerID),
			Restart: "unless-stopped",
			Healthcheck: composeHealthcheck{
				Test: []string{"CMD", "mysqladmin", "ping", "-h", "localhost",
					"-u", g.settings.AdminUser, "-p" + g.settings.AdminPassword},
				Interval: "10s",
				Timeout:  "5s",
				Retries:  5,
			},
		}
	}

	doc := composeDocument{
		Version:  "3.3",
		Services: services,
		Networks: map[string]composeNetwork{
			g.settings.NetworkName: {
				Driver: "bridge",
				IPAM: composeIPAM{
					Config: []composeSubnet{{Subnet: g.settings.NetworkSubnet}},
				},
			},
		},
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render compose manifest")
	}
	return out, nil
}

// WriteCompose renders and writes the compose manifest, returning its path.
func (g *Generator) WriteCompose(nodes []*topology.NodeDescriptor) (string, error) {
	out, err := g.RenderCompose(nodes)
	if err != nil {
		return "", err
	}

	path := g.ComposePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.Wrap(err, "failed to create cluster directory")
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", errors.Wrap(err, "failed to write compose manifest")
	}

	g.logger.Debug("compose manifest written", zap.String("path", path))
	return path, nil
}

// RenderServerConfig produces the server config file for one node. The
// group replication settings themselves are applied through the admin
// shell, not here.
func (g *Generator) RenderServerConfig(node *topology.NodeDescriptor) []byte {
	port := 3306
	if node.Role == topology.RolePrimary && node.Port != 0 {
		port = node.Port
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[mysqld]\n")
	fmt.Fprintf(&sb, "server-id = %d\n", node.ServerID)
	fmt.Fprintf(&sb, "bind-address = 0.0.0.0\n")
	fmt.Fprintf(&sb, "port = %d\n\n", port)

	sb.WriteString("log-bin = mysql-bin\n")
	sb.WriteString("binlog-format = ROW\n")
	sb.WriteString("gtid-mode = ON\n")
	sb.WriteString("enforce-gtid-consistency = ON\n")
	sb.WriteString("relay-log = mysql-relay-bin\n")
	sb.WriteString("relay-log-recovery = 1\n\n")

	sb.WriteString("default-storage-engine = InnoDB\n")
	sb.WriteString("innodb_buffer_pool_size = 1G\n")
	sb.WriteString("innodb_log_file_size = 256M\n")
	sb.WriteString("max_connections = 200\n")
	sb.WriteString("max_allowed_packet = 256M\n")

	return []byte(sb.String())
}

func serverConfigFileName(node *topology.NodeDescriptor) string {
	if node.Role == topology.RolePrimary {
		return "primary.cnf"
	}
	return fmt.Sprintf("secondary%d.cnf", node.ID-1)
}

// WriteAll lays down every deployment artifact for the topology: the
// config/data/logs directories, one server config per node, and the
// compose manifest when container secondaries exist.
func (g *Generator) WriteAll(topo *topology.Topology) error {
	for _, dir := range []string{g.settings.ConfigDir, g.settings.DataDir, g.settings.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	nodes := topo.Nodes()
	for _, node := range nodes {
		path := filepath.Join(g.settings.ConfigDir, serverConfigFileName(node))
		if err := os.WriteFile(path, g.RenderServerConfig(node), 0644); err != nil {
			return errors.Wrapf(err, "failed to write config for node %d", node.ID)
		}
	}

	if len(topo.SecondariesOfKind(topology.KindContainer)) > 0 {
		if _, err := g.WriteCompose(nodes); err != nil {
			return err
		}
	}

	g.logger.Info("deployment artifacts written",
		zap.String("baseDir", g.settings.BaseDir),
		zap.Int("nodes", len(nodes)))
	return nil
}
