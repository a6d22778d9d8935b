package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/cargomesh/mfgbatch/cmd/processor/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug    bool `help:"Enable debug mode."`
		Version  kong.VersionFlag
		Start    commands.StartCmd    `cmd:"" help:"Start the transaction processor"`
		Artifact commands.ArtifactCmd `cmd:"" help:"Inspect a contract registration archive"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
