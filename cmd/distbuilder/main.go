package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/distbuilder/cmd/distbuilder/commands"
	derrors "git.home.luguber.info/inful/distbuilder/internal/errors"
	"git.home.luguber.info/inful/distbuilder/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("distbuilder"),
		kong.Description("Compile a TypeScript/JavaScript source tree into a distributable output tree."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	global := &commands.Global{
		Logger: slog.Default(),
		Ctx:    ctx,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
	err := parser.Run(global, cli)
	stop()

	if err != nil {
		derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
