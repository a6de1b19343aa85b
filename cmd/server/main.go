package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/mhaswell/fabtrace/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug         bool `help:"Enable debug mode."`
		Version       kong.VersionFlag
		Server        commands.ServerCmd        `cmd:"" help:"Start the API server"`
		Migrate       commands.MigrateCmd       `cmd:"" help:"Run database migrations"`
		CreateTenant  commands.CreateTenantCmd  `cmd:"" name:"create-tenant" help:"Provision a tenant with its default groups"`
		CreateUser    commands.CreateUserCmd    `cmd:"" name:"create-user" help:"Create a principal"`
		SuspendTenant commands.SuspendTenantCmd `cmd:"" name:"suspend-tenant" help:"Suspend a tenant or lift a suspension"`
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
