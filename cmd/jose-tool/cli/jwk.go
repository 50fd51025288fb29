package cli

import (
	"fmt"
)

// JWKCmd is the parent for JWK commands
type JWKCmd struct {
	Thumbprint JWKThumbprintCmd `cmd:"" help:"print RFC 7638 thumbprint of the key"`
	Public     JWKPublicCmd     `cmd:"" help:"print the public key"`
}

// JWKThumbprintCmd specifies flags for thumbprint command
type JWKThumbprintCmd struct {
	Key string `kong:"arg" required:"" help:"JWK file, or - for stdin"`
}

// Run the command
func (a *JWKThumbprintCmd) Run(ctx *Cli) error {
	key, err := ctx.ReadKey(a.Key)
	if err != nil {
		return err
	}
	tp, err := key.ThumbprintString()
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Writer(), tp)
	return nil
}

// JWKPublicCmd specifies flags for public command
type JWKPublicCmd struct {
	Key string `kong:"arg" required:"" help:"JWK file, or - for stdin"`
}

// Run the command
func (a *JWKPublicCmd) Run(ctx *Cli) error {
	key, err := ctx.ReadKey(a.Key)
	if err != nil {
		return err
	}
	pub, err := key.Public()
	if err != nil {
		return err
	}
	return ctx.WriteJSON(pub)
}
