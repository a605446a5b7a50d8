package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/orchestrator"
	"github.com/replbridge/replbridge/pkg/metrics"
	"github.com/replbridge/replbridge/pkg/webapi"
	"github.com/replbridge/replbridge/plugin"
	"github.com/replbridge/replbridge/report"
	"github.com/replbridge/replbridge/topology"
	"github.com/replbridge/replbridge/utils/selfsignedcert"
)

func countOperation(ctx context.Context, name string) {
	metrics.GetBridgeMetrics().ClusterOperations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", name)))
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a new cluster topology and writes its artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		clusterName, _ := cmd.Flags().GetString("cluster-name")
		secondaries, _ := cmd.Flags().GetInt("secondaries")
		primaryKindStr, _ := cmd.Flags().GetString("primary-kind")
		adminUser, _ := cmd.Flags().GetString("admin-user")
		adminPassword, _ := cmd.Flags().GetString("admin-password")
		containerImage, _ := cmd.Flags().GetString("container-image")

		primaryKind, err := parseKind(primaryKindStr)
		if err != nil {
			return err
		}

		settings := topology.DefaultSettings(clusterName, viper.GetString("base-dir"))
		if adminUser != "" {
			settings.AdminUser = adminUser
		}
		if adminPassword != "" {
			settings.AdminPassword = adminPassword
		}
		if containerImage != "" {
			settings.ContainerImage = containerImage
		}
		if shellPath := viper.GetString("admin-shell"); shellPath != "" {
			settings.AdminShellPath = shellPath
		}

		secretUser, secretPass, fromSecret, err := resolveSecretCreds(ctx, cmd)
		if err != nil {
			return errors.Wrap(err, "failed to fetch admin credentials")
		}
		if fromSecret {
			settings.AdminUser = secretUser
			settings.AdminPassword = secretPass
		}

		topo, err := topology.New(settings, primaryKind)
		if err != nil {
			return err
		}
		for i := 0; i < secondaries; i++ {
			if _, err := topo.AddSecondary(topology.SecondarySpec{Kind: topology.KindContainer}); err != nil {
				return err
			}
		}

		st := buildStack(logger, topo)
		if err := st.gen.WriteAll(topo); err != nil {
			return err
		}
		if err := topo.Save(topologyPath()); err != nil {
			return err
		}

		countOperation(ctx, "create")
		fmt.Printf("cluster %q created with %d secondaries\n", clusterName, secondaries)
		fmt.Printf("topology written to %s\n", topologyPath())
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Regenerates config files and deployment manifests from the topology",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)
		if err := st.gen.WriteAll(topo); err != nil {
			return err
		}

		countOperation(cmd.Context(), "setup")
		fmt.Printf("artifacts written under %s\n", topo.Settings().BaseDir)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts every node and converges group membership",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		noConverge, _ := cmd.Flags().GetBool("no-converge")

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)

		countOperation(ctx, "start")
		rep := st.orch.StartCluster(ctx, !noConverge)
		fmt.Printf("cluster state: %s\n", st.orch.State())
		finishReport(rep)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stops every node, secondaries before the primary",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)

		countOperation(ctx, "stop")
		rep := st.orch.StopCluster(ctx)
		finishReport(rep)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stops and then starts the whole cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)

		countOperation(ctx, "restart")
		rep := st.orch.RestartCluster(ctx)
		fmt.Printf("cluster state: %s\n", st.orch.State())
		finishReport(rep)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probes every node and prints the cluster status",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		asJSON, _ := cmd.Flags().GetBool("json")
		withGroup, _ := cmd.Flags().GetBool("group")

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)

		statuses := st.orch.Status(ctx)

		if asJSON {
			doc := statusDocumentFrom(topo, statuses)
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			renderStatusTable(statuses)
		}

		if withGroup {
			groupStatus, err := st.shell.ClusterStatus(ctx, topo.Primary())
			if err != nil {
				return errors.Wrap(err, "failed to fetch group status")
			}
			fmt.Println(groupStatus)
		}
		return nil
	},
}

func renderStatusTable(statuses []orchestrator.NodeStatus) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Role", "Kind", "Endpoint", "Running", "Reachable"})
	for _, s := range statuses {
		table.Append([]string{
			strconv.Itoa(s.Node.ID),
			string(s.Node.Role),
			string(s.Node.Kind),
			s.Node.Endpoint(),
			strconv.FormatBool(s.Running),
			strconv.FormatBool(s.Reachable),
		})
	}
	table.Render()
}

type nodeStatusDocument struct {
	ID        int    `json:"id"`
	Role      string `json:"role"`
	Kind      string `json:"kind"`
	Endpoint  string `json:"endpoint"`
	Running   bool   `json:"running"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

type statusDocument struct {
	ClusterName string               `json:"clusterName"`
	Nodes       []nodeStatusDocument `json:"nodes"`
}

func statusDocumentFrom(topo *topology.Topology, statuses []orchestrator.NodeStatus) statusDocument {
	doc := statusDocument{ClusterName: topo.Settings().ClusterName}
	for _, s := range statuses {
		node := nodeStatusDocument{
			ID:        s.Node.ID,
			Role:      string(s.Node.Role),
			Kind:      string(s.Node.Kind),
			Endpoint:  s.Node.Endpoint(),
			Running:   s.Running,
			Reachable: s.Reachable,
		}
		if s.Err != nil {
			node.Error = s.Err.Error()
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	return doc
}

var scaleCmd = &cobra.Command{
	Use:   "scale <target>",
	Short: "Scales the cluster to the given number of secondaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		target, err := strconv.Atoi(args[0])
		if err != nil || target < 0 {
			return errors.Errorf("invalid target secondary count %q", args[0])
		}
		detachOnly, _ := cmd.Flags().GetBool("detach-only")

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)

		countOperation(ctx, "scale")
		rep := st.scaler.ScaleTo(ctx, target, detachOnly)
		finishReport(rep)
		return nil
	},
}

var addNodeCmd = &cobra.Command{
	Use:   "add-node",
	Short: "Attaches a remote host to the cluster over ssh",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		host, _ := cmd.Flags().GetString("host")
		sshUser, _ := cmd.Flags().GetString("ssh-user")
		sshKey, _ := cmd.Flags().GetString("ssh-key")
		sshPort, _ := cmd.Flags().GetInt("ssh-port")
		if host == "" || sshUser == "" {
			return errors.New("add-node requires --host and --ssh-user")
		}

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)

		countOperation(ctx, "add-node")
		rep := report.NewOperation("add-node")

		node, err := topo.AddSecondary(topology.SecondarySpec{
			Kind:       topology.KindRemoteSSH,
			Host:       host,
			SSHUser:    sshUser,
			SSHKeyPath: sshKey,
			SSHPort:    sshPort,
		})
		if err != nil {
			rep.Add(report.FromError("register-node", "", err))
			finishReport(rep)
			return nil
		}
		rep.Add(report.Success("register-node",
			fmt.Sprintf("node %d at %s", node.ID, node.Endpoint())))

		if !driver.ProbeEndpoint(ctx, node.Endpoint()) {
			startNode(ctx, st, node, rep)
		}

		if driver.ProbeEndpoint(ctx, node.Endpoint()) {
			rep.Add(st.conv.JoinNode(ctx, topo, node.ID))
		} else {
			rep.Add(report.Failure("join-node",
				fmt.Sprintf("node %s is not reachable", node.Endpoint())))
		}

		if rep.Succeeded {
			if err := topo.Save(topologyPath()); err != nil {
				rep.Add(report.FromError("save-topology", "", err))
			}
		} else {
			// failed attach does not persist; the descriptor is dropped
			// so a retry starts clean
			_, _ = topo.RemoveSecondary(node.ID)
		}

		finishReport(rep)
		return nil
	},
}

func startNode(ctx context.Context, st *stack, node *topology.NodeDescriptor, rep *report.Report) {
	drv, err := driver.ForNode(node, st.driverOpts)
	if err != nil {
		rep.Add(report.FromError("start-node", "", err))
		return
	}
	detail, err := drv.Start(ctx)
	rep.Add(report.FromError("start-node", detail, err))
}

var removeNodeCmd = &cobra.Command{
	Use:   "remove-node <id>",
	Short: "Removes a secondary from the group and from the topology",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		id, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Errorf("invalid node id %q", args[0])
		}
		keepRunning, _ := cmd.Flags().GetBool("detach-only")

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)

		countOperation(ctx, "remove-node")
		rep := report.NewOperation("remove-node")

		node, err := topo.FindSecondary(id)
		if err != nil {
			rep.Add(report.FromError("find-node", "", err))
			finishReport(rep)
			return nil
		}

		// group eviction is best effort; an unreachable node must still be
		// removable from the topology
		if err := st.conv.RemoveNode(ctx, topo, node); err != nil {
			rep.AddOptional(report.FromError(
				fmt.Sprintf("evict-node-%d", id), "", err))
		}

		if !keepRunning {
			drv, err := driver.ForNode(node, st.driverOpts)
			if err == nil {
				detail, stopErr := drv.Stop(ctx)
				rep.AddOptional(report.FromError(
					fmt.Sprintf("stop-node-%d", id), detail, stopErr))
				if remover, ok := drv.(interface {
					Remove(ctx context.Context) error
				}); ok {
					rep.AddOptional(report.FromError(
						fmt.Sprintf("deprovision-node-%d", id), "", remover.Remove(ctx)))
				}
			}
		}

		if _, err := topo.RemoveSecondary(id); err != nil {
			rep.Add(report.FromError("remove-node", "", err))
			finishReport(rep)
			return nil
		}
		rep.Add(report.Success("remove-node", fmt.Sprintf("node %d removed", id)))

		if err := st.gen.WriteAll(topo); err != nil {
			rep.Add(report.FromError("write-manifest", "", err))
		}
		if err := topo.Save(topologyPath()); err != nil {
			rep.Add(report.FromError("save-topology", "", err))
		}

		metrics.GetBridgeMetrics().NodesManaged.Add(ctx, -1)
		finishReport(rep)
		return nil
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manages the storage engine plugin across the cluster",
}

var pluginCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Checks plugin availability on every node",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)

		countOperation(ctx, "plugin-check")
		finishReport(st.plugin.Check(ctx))
		return nil
	},
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Distributes and loads the plugin on every node",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		pluginPath, _ := cmd.Flags().GetString("plugin-path")
		engine, _ := cmd.Flags().GetString("engine")

		if pluginPath == "" {
			found, err := plugin.FindPlugin(engine)
			if err != nil {
				return err
			}
			pluginPath = found
		}

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		st := buildStack(logger, topo)
		mgr := st.plugin
		if engine != plugin.DefaultEngineName {
			mgr = plugin.New(&plugin.Options{
				Logger:        logger,
				Topology:      topo,
				Shell:         st.shell,
				DriverOptions: st.driverOpts,
				EngineName:    engine,
			})
		}

		countOperation(ctx, "plugin-install")
		finishReport(mgr.Install(ctx, pluginPath))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Tears down containers and generated artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		all, _ := cmd.Flags().GetBool("all")

		topo, err := loadTopology()
		if err != nil {
			return err
		}
		settings := topo.Settings()
		st := buildStack(logger, topo)
		runner := &driver.ExecRunner{Logger: logger}

		countOperation(ctx, "cleanup")
		rep := report.NewOperation("cleanup")

		for _, node := range topo.SecondariesOfKind(topology.KindContainer) {
			res, err := runner.Run(ctx, "docker", "rm", "-f", node.Container.Name)
			if err != nil {
				rep.AddOptional(report.FromError(
					fmt.Sprintf("remove-container-%d", node.ID), "", err))
				continue
			}
			rep.AddOptional(report.FromError(
				fmt.Sprintf("remove-container-%d", node.ID), node.Container.Name,
				containerRemoveErr(res)))
		}

		res, err := runner.Run(ctx, "docker", "network", "rm", settings.NetworkName)
		if err == nil && !res.Ok() {
			// a missing network is already clean
			err = nil
		}
		rep.AddOptional(report.FromError("remove-network", settings.NetworkName, err))

		for _, dir := range []string{settings.DataDir, settings.LogsDir} {
			rep.Add(report.FromError("remove-dir", dir, os.RemoveAll(dir)))
		}
		if all {
			rep.Add(report.FromError("remove-dir", settings.ConfigDir, os.RemoveAll(settings.ConfigDir)))
			composePath := st.gen.ComposePath()
			rep.Add(report.FromError("remove-manifest", composePath, removeIfExists(composePath)))
		}

		finishReport(rep)
		return nil
	},
}

func containerRemoveErr(res *driver.CommandResult) error {
	if res.Ok() {
		return nil
	}
	out := res.Output()
	// an already-gone container is clean
	if strings.Contains(out, "No such container") {
		return nil
	}
	if out == "" {
		out = fmt.Sprintf("exit code %d", res.ExitCode)
	}
	return errors.New(out)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the status and metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel, logger := setupLogger()
		defer logger.Sync()
		ctx := cmd.Context()

		webPort, _ := cmd.Flags().GetInt("web-port")
		webTLS, _ := cmd.Flags().GetBool("web-tls")
		otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")

		topo, err := loadTopology()
		if err != nil {
			return err
		}

		meterProvider, err := initMetrics(ctx, logger, otlpEndpoint)
		if err != nil {
			return errors.Wrap(err, "failed to initialize metrics")
		}
		defer meterProvider.Shutdown(context.Background())

		source := &liveStatusSource{}
		source.swap(logger, topo)
		metrics.GetBridgeMetrics().NodesManaged.Add(ctx, int64(len(topo.Nodes())))

		watcher, err := watchTopology(logger, source)
		if err != nil {
			logger.Warn("topology watch unavailable", zap.Error(err))
		} else {
			defer watcher.Close()
		}

		var tlsCert *tls.Certificate
		if webTLS {
			tlsCert, err = selfsignedcert.GenerateCertificate()
			if err != nil {
				return errors.Wrap(err, "failed to generate web certificate")
			}
		}

		web := webapi.NewWebServer(webapi.WebServerOptions{
			Logger:         logger.Named("web"),
			LogLevel:       &logLevel,
			ListenAddress:  fmt.Sprintf(":%d", webPort),
			Status:         source,
			TLSCertificate: tlsCert,
		})

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- web.ListenAndServe()
		}()
		logger.Info("web server listening", zap.Int("port", webPort))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
		case err := <-serveErr:
			return errors.Wrap(err, "web server failed")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return web.Shutdown(shutdownCtx)
	},
}

func watchTopology(logger *zap.Logger, source *liveStatusSource) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// the document is replaced by rename on save, so watch its directory
	if err := watcher.Add(filepath.Dir(topologyPath())); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != topologyPath() {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
					!event.Op.Has(fsnotify.Rename) {
					continue
				}
				topo, err := loadTopology()
				if err != nil {
					logger.Warn("ignoring invalid topology update", zap.Error(err))
					continue
				}
				source.swap(logger, topo)
				logger.Info("topology reloaded",
					zap.Int("secondaries", topo.SecondaryCount()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("topology watch error", zap.Error(err))
			}
		}
	}()

	return watcher, nil
}

// liveStatusSource serves the current topology's status to the web api,
// following topology file reloads.
type liveStatusSource struct {
	mu   sync.RWMutex
	topo *topology.Topology
	orch *orchestrator.Orchestrator
}

func (s *liveStatusSource) swap(logger *zap.Logger, topo *topology.Topology) {
	st := buildStack(logger, topo)
	s.mu.Lock()
	s.topo = topo
	s.orch = st.orch
	s.mu.Unlock()
}

func (s *liveStatusSource) StatusDocument(ctx context.Context) (interface{}, error) {
	s.mu.RLock()
	topo, orch := s.topo, s.orch
	s.mu.RUnlock()

	return statusDocumentFrom(topo, orch.Status(ctx)), nil
}

func parseKind(s string) (topology.DeploymentKind, error) {
	switch topology.DeploymentKind(s) {
	case topology.KindLocalService, topology.KindLocalBinary,
		topology.KindContainer, topology.KindRemoteSSH:
		return topology.DeploymentKind(s), nil
	}
	return "", errors.Errorf("unknown deployment kind %q", s)
}

func init() {
	createCmd.Flags().String("cluster-name", "lineairdb_cluster", "name of the replication group")
	createCmd.Flags().Int("secondaries", 2, "number of container secondaries to provision")
	createCmd.Flags().String("primary-kind", string(topology.KindLocalService),
		"deployment kind of the primary (local_service, local_binary, container, remote_ssh)")
	createCmd.Flags().String("admin-user", "", "cluster admin username")
	createCmd.Flags().String("admin-password", "", "cluster admin password")
	createCmd.Flags().String("container-image", "", "image used for container secondaries")
	createCmd.Flags().String("admin-creds-aws-id", "", "fetch admin credentials from this aws secret")
	createCmd.Flags().String("admin-creds-aws-region", "", "region of the aws secret")
	createCmd.Flags().String("admin-creds-azure-id", "", "fetch admin credentials from this azure key vault secret")
	createCmd.Flags().String("admin-creds-azure-vault-name", "", "key vault holding the azure secret")
	createCmd.Flags().String("admin-creds-gcp-id", "", "fetch admin credentials from this gcp secret")
	createCmd.Flags().String("admin-creds-gcp-project-id", "", "project holding the gcp secret")

	startCmd.Flags().Bool("no-converge", false, "start nodes without joining them to the group")

	statusCmd.Flags().Bool("json", false, "print status as json")
	statusCmd.Flags().Bool("group", false, "also print the replication group status document")

	scaleCmd.Flags().Bool("detach-only", false, "skip group eviction when removing nodes")

	addNodeCmd.Flags().String("host", "", "hostname or address of the remote node")
	addNodeCmd.Flags().String("ssh-user", "", "ssh user for the remote node")
	addNodeCmd.Flags().String("ssh-key", "", "ssh identity file for the remote node")
	addNodeCmd.Flags().Int("ssh-port", 22, "ssh port of the remote node")

	removeNodeCmd.Flags().Bool("detach-only", false, "remove from the group but leave the node running")

	pluginInstallCmd.Flags().String("plugin-path", "", "path to the plugin shared object (default: search build directories)")
	pluginInstallCmd.Flags().String("engine", plugin.DefaultEngineName, "storage engine plugin name")
	pluginCmd.AddCommand(pluginCheckCmd)
	pluginCmd.AddCommand(pluginInstallCmd)

	cleanupCmd.Flags().Bool("all", false, "also remove config files and the deployment manifest")

	serveCmd.Flags().Int("web-port", 9091, "port for the status and metrics endpoint")
	serveCmd.Flags().Bool("web-tls", false, "serve the endpoint over https with a self-signed certificate")
	serveCmd.Flags().String("otlp-endpoint", "", "optional otlp grpc endpoint for metrics export")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scaleCmd)
	rootCmd.AddCommand(addNodeCmd)
	rootCmd.AddCommand(removeNodeCmd)
	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(serveCmd)
}
