package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/projectkeeper/cmd/keeper/internal/commands"
	"github.com/wolfeidau/projectkeeper/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Dev      bool                 `help:"Enable development logging." env:"KEEPER_DEV"`
		Version  kong.VersionFlag     `help:"Print version and exit."`
		Worker   commands.WorkerCmd   `cmd:"" help:"Run the teardown worker and orphan sweep"`
		Activate commands.ActivateCmd `cmd:"" help:"Activate a tenant that signed up through the API or form channel"`
		Teardown commands.TeardownCmd `cmd:"" help:"Schedule the asynchronous teardown of a tenant"`
		Sweep    commands.SweepCmd    `cmd:"" help:"Finish destroying resources whose payload is missing"`
		Migrate  commands.MigrateCmd  `cmd:"" help:"Apply database migrations"`
		Plans    commands.PlansCmd    `cmd:"" help:"Validate a plan file"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("keeper"),
		kong.Description("Project lifecycle and tenant teardown service."),
		kong.Vars{
			"version": version,
		})

	ctx = logger.Install(ctx, logger.Setup(cli.Dev))
	cmd.BindTo(ctx, (*context.Context)(nil))

	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
