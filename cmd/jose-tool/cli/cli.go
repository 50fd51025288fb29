package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/xjose/config"
	"github.com/effective-security/xjose/jwk"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xjose", "cli")

// Cli provides CLI context to run commands
type Cli struct {
	Version ctl.VersionFlag `name:"version" help:"Print version information and quit" hidden:""`
	Debug   bool            `short:"D" help:"Enable debug logging"`
	Cfg     string          `help:"Configuration file with named builders, loaders and keys"`

	// Stdin is the source to read from, typically set to os.Stdin
	stdin io.Reader
	// Output is the destination for all output from the command, typically set to os.Stdout
	output io.Writer
	// ErrOutput is the destinaton for errors.
	// If not set, errors will be written to os.StdError
	errOutput io.Writer

	ctx     context.Context
	factory *config.Factory
}

// Context for requests
func (c *Cli) Context() context.Context {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	return c.ctx
}

// Reader is the source to read from, typically set to os.Stdin
func (c *Cli) Reader() io.Reader {
	if c.stdin != nil {
		return c.stdin
	}
	return os.Stdin
}

// WithReader allows to specify a custom reader
func (c *Cli) WithReader(reader io.Reader) *Cli {
	c.stdin = reader
	return c
}

// Writer returns a writer for control output
func (c *Cli) Writer() io.Writer {
	if c.output != nil {
		return c.output
	}
	return os.Stdout
}

// WithWriter allows to specify a custom writer
func (c *Cli) WithWriter(out io.Writer) *Cli {
	c.output = out
	return c
}

// ErrWriter returns a writer for control output
func (c *Cli) ErrWriter() io.Writer {
	if c.errOutput != nil {
		return c.errOutput
	}
	return os.Stderr
}

// WithErrWriter allows to specify a custom error writer
func (c *Cli) WithErrWriter(out io.Writer) *Cli {
	c.errOutput = out
	return c
}

// AfterApply hook sets the log level
func (c *Cli) AfterApply(_ *kong.Kong, _ kong.Vars) error {
	if c.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.ERROR)
	}
	return nil
}

// Factory returns pipelines loaded from --cfg
func (c *Cli) Factory() (*config.Factory, error) {
	if c.factory != nil {
		return c.factory, nil
	}
	if c.Cfg == "" {
		return nil, errors.New("--cfg is required to use named builders and loaders")
	}
	f, err := config.Load(c.Cfg)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to load configuration")
	}
	c.factory = f
	return f, nil
}

// WriteJSON prints indented JSON to out
func (c *Cli) WriteJSON(value any) error {
	js, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.WithMessage(err, "failed to encode")
	}
	_, err = fmt.Fprintln(c.Writer(), string(js))
	return errors.WithStack(err)
}

// ReadFile reads from stdin if the file is "-"
func (c *Cli) ReadFile(filename string) ([]byte, error) {
	if filename == "" {
		return nil, errors.New("empty file name")
	}
	if filename == "-" {
		return io.ReadAll(c.Reader())
	}
	return os.ReadFile(filename)
}

// ReadKey returns JWK from the file
func (c *Cli) ReadKey(filename string) (*jwk.JWK, error) {
	raw, err := c.ReadFile(filename)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to load key")
	}
	return jwk.Parse(raw)
}

// ReadKeySet returns JWK Set from the file,
// a single JWK is returned as a set of one key
func (c *Cli) ReadKeySet(filename string) (*jwk.Set, error) {
	raw, err := c.ReadFile(filename)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to load keys")
	}
	set, err := jwk.ParseSet(raw)
	if err == nil {
		return set, nil
	}
	k, kerr := jwk.Parse(raw)
	if kerr != nil {
		logger.KV(xlog.DEBUG, "reason", "parse_keys", "file", filename, "err", err.Error())
		return nil, kerr
	}
	return jwk.NewSet(k), nil
}

func (c *Cli) readToken(filename string) (string, error) {
	raw, err := c.ReadFile(filename)
	if err != nil {
		return "", errors.WithMessage(err, "unable to load token")
	}
	return strings.TrimSpace(string(raw)), nil
}
