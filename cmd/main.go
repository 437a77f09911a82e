package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	testkit "github.com/ethereum-optimism/infra/op-testkit"
	"github.com/ethereum-optimism/infra/op-testkit/flags"
	"github.com/ethereum-optimism/infra/op-testkit/service"
	"github.com/ethereum-optimism/infra/op-testkit/types"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

var InjectFailure = &cli.BoolFlag{
	Name:    "selfcheck.inject-failure",
	Value:   false,
	EnvVars: opservice.PrefixEnvVar(flags.EnvVarPrefix, "SELFCHECK_INJECT_FAILURE"),
	Usage:   "Add a test that always fails to the selfcheck assembly",
}

func main() {
	app := newApp(os.Exit)

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// newApp builds the CLI. exit is called with the exit code of a failed run.
func newApp(exit func(int)) *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-testkit"
	app.Usage = "Test execution engine"
	app.Description = "op-testkit runs its selfcheck assembly through the test engine, once or periodically"
	app.Flags = cliapp.ProtectFlags(append([]cli.Flag{InjectFailure}, flags.Flags...))
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		code := testkit.ExitCode(err)
		var exitErr cli.ExitCoder
		if !testkit.IsRuntimeError(err) && !testkit.IsTestFailureError(err) && errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		fmt.Fprintln(c.App.ErrWriter, err)
		exit(code)
	}
	return app
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := testkit.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, testkit.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	return newLifecycle(ctx, cfg, selfcheckAssembly(ctx.Bool(InjectFailure.Name)), closeApp)
}

// lifecycle runs the kit alongside the healthz and metrics servers.
type lifecycle struct {
	*testkit.Kit
	svc *service.Service
}

func newLifecycle(ctx *cli.Context, cfg *testkit.Config, assembly types.AssemblyInfo, closeApp context.CancelCauseFunc) (*lifecycle, error) {
	kit, err := testkit.New(cfg, assembly, Version, closeApp, testkit.Options{})
	if err != nil {
		return nil, testkit.NewRuntimeError(fmt.Errorf("failed to create testkit: %w", err))
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	svc := service.New(service.Config{
		Log:            cfg.Log,
		HealthzEnabled: ctx.Bool(flags.HealthzEnabled.Name),
		HealthzPort:    ctx.String(flags.HealthzPort.Name),
		MetricsEnabled: metricsCfg.Enabled,
		MetricsHost:    metricsCfg.ListenAddr,
		MetricsPort:    strconv.Itoa(metricsCfg.ListenPort),
		Status:         kit.Status,
	})
	return &lifecycle{Kit: kit, svc: svc}, nil
}

func (l *lifecycle) Start(ctx context.Context) error {
	l.svc.Start(ctx)
	return l.Kit.Start(ctx)
}

func (l *lifecycle) Stop(ctx context.Context) error {
	err := l.Kit.Stop(ctx)
	l.svc.Shutdown()
	return err
}
