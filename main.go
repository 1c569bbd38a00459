package unit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/ethereum-optimism/infra/op-unit/exitcodes"
	"github.com/ethereum-optimism/infra/op-unit/flags"
	"github.com/ethereum-optimism/infra/op-unit/registry"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

// NewApp builds the command line application of a test binary. Suites registered with
// registry.Register run first, followed by inits in order.
func NewApp(inits ...registry.Initializer) *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "Run the unit tests compiled into this binary"
	app.Description = "Runs registered test suites on a pool of runners and reports the results to the console and as JUnit XML"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(lifecycleAction(inits))
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), ExitCode(err)))
		}
	}
	return app
}

func lifecycleAction(inits []registry.Initializer) cliapp.LifecycleAction {
	return func(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		logCfg := oplog.ReadCLIConfig(ctx)
		// Logs go to stderr so they never interleave with the console report.
		log := oplog.NewLogger(ctx.App.ErrWriter, logCfg)
		oplog.SetGlobalLogHandler(log.Handler())
		oplog.SetupDefaults()

		cfg, err := NewConfig(ctx, log)
		if err != nil {
			return nil, NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
		}
		cfg.Log.Debug("Config", "config", cfg)

		t, err := newTester(cfg, inits, closeApp)
		if err != nil {
			return nil, NewRuntimeError(fmt.Errorf("failed to create tester: %w", err))
		}
		return t, nil
	}
}

// Main runs a test binary and exits the process with the run's exit code
func Main(inits ...registry.Initializer) {
	app := NewApp(inits...)

	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Error("Failed to setup open telemetry", "message", err)
		os.Exit(exitcodes.RuntimeErr)
	}

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	shutdown()
	if err != nil {
		// Errors returned by the action already exited through ExitErrHandler; what is
		// left are flag parsing errors.
		log.Error("Application failed", "message", err)
		os.Exit(ExitCode(err))
	}
}
