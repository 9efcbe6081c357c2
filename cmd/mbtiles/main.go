// Command mbtiles validates, inspects, edits and serves MBTiles files.
package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/mohammed-shakir/mbtiles-store/internal/logger"
)

var Version = "dev"

// Globals are the flags shared by every command.
type Globals struct {
	Config     kong.ConfigFlag `help:"JSONC file with flag defaults." type:"existingfile"`
	LogLevel   string          `name:"log-level" env:"LOG_LEVEL" help:"Log level (debug, info, warn, error)."`
	LogConsole bool            `name:"log-console" env:"LOG_CONSOLE" help:"Human readable logs."`
}

// CLI defines the command-line interface for mbtiles.
type CLI struct {
	Globals

	Validate ValidateCmd `cmd:"" help:"Check a file against an MBTiles schema revision"`
	Info     InfoCmd     `cmd:"" help:"Print metadata and tile statistics"`
	Create   CreateCmd   `cmd:"" help:"Create a new empty MBTiles file"`
	Get      GetCmd      `cmd:"" help:"Read one tile"`
	Put      PutCmd      `cmd:"" help:"Write one tile"`
	Serve    ServeCmd    `cmd:"" help:"Serve tiles over HTTP"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// logger builds the command's logger; def is the level used when none was
// given.
func (g *Globals) logger(component, def string) *slog.Logger {
	lvl := g.LogLevel
	if lvl == "" {
		lvl = def
	}
	zl := logger.Build(logger.Config{
		Level:     lvl,
		Console:   g.LogConsole,
		Component: component,
	}, os.Stderr)
	return logger.NewSlog(&zl)
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	base := []kong.Option{
		kong.Name("mbtiles"),
		kong.Description("Read, write and serve MBTiles tile stores."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Configuration(JSONCLoader, "~/.config/mbtiles/config.jsonc"),
	}
	return kong.New(cli, append(base, opts...)...)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	err = ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
