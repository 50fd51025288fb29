package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/xjose/cmd/jose-tool/cli"
	"github.com/effective-security/xjose/internal/version"
	logger "github.com/sirupsen/logrus"
)

type app struct {
	cli.Cli

	JWS cli.JWSCmd `cmd:"" name:"jws" help:"JWS commands"`
	JWE cli.JWECmd `cmd:"" name:"jwe" help:"JWE commands"`
	JWK cli.JWKCmd `cmd:"" name:"jwk" help:"JWK commands"`
}

func main() {
	logger.SetReportCaller(true)
	logger.SetFormatter(&logger.TextFormatter{})

	realMain(os.Args, os.Stdout, os.Stderr, os.Exit)
}

func realMain(args []string, out io.Writer, errout io.Writer, exit func(int)) {
	cl := app{
		Cli: cli.Cli{},
	}
	cl.Cli.WithErrWriter(errout).
		WithWriter(out)

	parser, err := kong.New(&cl,
		kong.Name("jose-tool"),
		kong.Description("JOSE tools: sign, verify, encrypt and decrypt"),
		kong.Writers(out, errout),
		kong.Exit(exit),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version.Current().String(),
		})
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args[1:])
	parser.FatalIfErrorf(err)

	if ctx != nil {
		err = ctx.Run(&cl.Cli)
		ctx.FatalIfErrorf(err)
	}
}
