package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/replbridge/replbridge/adminshell"
	"github.com/replbridge/replbridge/convergence"
	"github.com/replbridge/replbridge/driver"
	"github.com/replbridge/replbridge/manifest"
	"github.com/replbridge/replbridge/orchestrator"
	"github.com/replbridge/replbridge/plugin"
	"github.com/replbridge/replbridge/report"
	"github.com/replbridge/replbridge/scaling"
	"github.com/replbridge/replbridge/topology"
	"github.com/replbridge/replbridge/utils/secretsmanager"
)

var buildVersion = "dev"

var rootCmd = &cobra.Command{
	Version: buildVersion,

	Use:   "replbridge",
	Short: "Manages the lifecycle of a replicated database cluster",
	Long: "replbridge provisions, starts, scales and converges a group-replicated\n" +
		"database cluster whose nodes run as local services, local binaries,\n" +
		"containers, or remote hosts over ssh.",
}

func init() {
	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.String("base-dir", ".", "directory holding the topology file and generated artifacts")
	configFlags.String("admin-shell", "", "path to the admin shell binary (default: mysqlsh from PATH)")
	configFlags.String("compose-path", "", "path to the container deployment manifest (default: under base-dir)")
	rootCmd.PersistentFlags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("rb")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)
}

func getLogger() (zap.AtomicLevel, *zap.Logger) {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stderr), logLevel),
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logLevel, logger
}

func setupLogger() (zap.AtomicLevel, *zap.Logger) {
	logLevel, logger := getLogger()

	levelStr := viper.GetString("log-level")
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		logger.Warn("invalid log level string, using info",
			zap.String("level", levelStr))
		level = zapcore.InfoLevel
	}
	logLevel.SetLevel(level)

	return logLevel, logger
}

func topologyPath() string {
	return topology.DefaultPath(topology.DefaultSettings("", viper.GetString("base-dir")))
}

func loadTopology() (*topology.Topology, error) {
	return topology.Load(topologyPath())
}

// stack bundles the components every cluster command needs, wired the same
// way each time.
type stack struct {
	logger     *zap.Logger
	topo       *topology.Topology
	gen        *manifest.Generator
	driverOpts driver.Options
	shell      *adminshell.Shell
	conv       *convergence.Convergence
	orch       *orchestrator.Orchestrator
	scaler     *scaling.Controller
	plugin     *plugin.Manager
}

func buildStack(logger *zap.Logger, topo *topology.Topology) *stack {
	settings := topo.Settings()

	gen := manifest.NewGenerator(settings, &manifest.Options{Logger: logger})

	composePath := viper.GetString("compose-path")
	if composePath == "" {
		composePath = gen.ComposePath()
	}

	runner := &driver.ExecRunner{Logger: logger}
	driverOpts := driver.Options{
		Logger:      logger,
		Runner:      runner,
		ComposePath: composePath,
	}

	shell := adminshell.NewShell(&adminshell.Options{
		Logger:      logger,
		Runner:      runner,
		ShellPath:   adminShellPath(settings),
		ClusterName: settings.ClusterName,
	})

	conv := convergence.New(&convergence.Options{
		Logger: logger,
		Shell:  shell,
	})

	orch := orchestrator.New(&orchestrator.Options{
		Logger:        logger,
		Topology:      topo,
		Convergence:   conv,
		DriverOptions: driverOpts,
	})

	scaler := scaling.New(&scaling.Options{
		Logger:        logger,
		Topology:      topo,
		Convergence:   conv,
		Manifest:      gen,
		DriverOptions: driverOpts,
		TopologyPath:  topologyPath(),
	})

	pluginMgr := plugin.New(&plugin.Options{
		Logger:        logger,
		Topology:      topo,
		Shell:         shell,
		DriverOptions: driverOpts,
	})

	return &stack{
		logger:     logger,
		topo:       topo,
		gen:        gen,
		driverOpts: driverOpts,
		shell:      shell,
		conv:       conv,
		orch:       orch,
		scaler:     scaler,
		plugin:     pluginMgr,
	}
}

func adminShellPath(settings topology.Settings) string {
	if p := viper.GetString("admin-shell"); p != "" {
		return p
	}
	return settings.AdminShellPath
}

// finishReport prints the per-step breakdown and exits nonzero when the
// operation failed.
func finishReport(rep *report.Report) {
	fmt.Print(rep.String())
	if !rep.Succeeded {
		os.Exit(1)
	}
}

func initMetrics(ctx context.Context, logger *zap.Logger, otlpEndpoint string) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("replbridge"),
		),
	)
	if err != nil {
		if res == nil {
			return nil, err
		}

		logger.Warn("failed to setup some part of opentelemetry resource", zap.Error(err))
	}

	promExp, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	var meterProvider *sdkmetric.MeterProvider
	if otlpEndpoint == "" {
		meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExp),
		)
	} else {
		metricExp, err := otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithInsecure(),
			otlpmetricgrpc.WithEndpoint(otlpEndpoint))
		if err != nil {
			return nil, err
		}

		meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExp),
			sdkmetric.WithReader(
				sdkmetric.NewPeriodicReader(
					metricExp,
				),
			),
		)
	}

	otel.SetMeterProvider(meterProvider)

	logger.Debug("metrics initialized", zap.String("otlpEndpoint", otlpEndpoint))
	return meterProvider, nil
}

// resolveSecretCreds fetches the cluster admin credential from a cloud
// secret store when one of the secret flag groups is set.
func resolveSecretCreds(ctx context.Context, cmd *cobra.Command) (string, string, bool, error) {
	awsID, _ := cmd.Flags().GetString("admin-creds-aws-id")
	awsRegion, _ := cmd.Flags().GetString("admin-creds-aws-region")
	azureID, _ := cmd.Flags().GetString("admin-creds-azure-id")
	azureVault, _ := cmd.Flags().GetString("admin-creds-azure-vault-name")
	gcpID, _ := cmd.Flags().GetString("admin-creds-gcp-id")
	gcpProject, _ := cmd.Flags().GetString("admin-creds-gcp-project-id")

	switch {
	case awsID != "":
		user, pass, err := secretsmanager.FetchAWSSecret(ctx, awsID, awsRegion)
		return user, pass, true, err
	case azureID != "":
		user, pass, err := secretsmanager.FetchAzureSecret(ctx, azureID, azureVault)
		return user, pass, true, err
	case gcpID != "":
		user, pass, err := secretsmanager.FetchGcpSecret(ctx, gcpID, gcpProject)
		return user, pass, true, err
	}
	return "", "", false, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
