package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/effective-security/x/ctl"
	"github.com/stretchr/testify/suite"
)

type testSuite struct {
	suite.Suite
	tmpdir string
	ctl    *Cli
	// Out is the outpub buffer
	Out bytes.Buffer

	appFlags []string
}

func (s *testSuite) SetupSuite() {
	var err error
	s.tmpdir, err = os.MkdirTemp("", "jose-tool")
	s.Require().NoError(err)

	s.ctl = &Cli{}

	s.ctl.WithErrWriter(&s.Out).
		WithWriter(&s.Out)

	parser, err := kong.New(s.ctl,
		kong.Name("jose-tool"),
		kong.Description("CLI tool"),
		kong.Writers(&s.Out, &s.Out),
		ctl.BoolPtrMapper,
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{})
	if err != nil {
		s.FailNow("unexpected error constructing Kong: %+v", err)
	}

	_, err = parser.Parse(s.appFlags)
	if err != nil {
		s.FailNow("unexpected error parsing: %+v", err)
	}
}

func (s *testSuite) TearDownSuite() {
	os.RemoveAll(s.tmpdir)
}

func (s *testSuite) SetupTest() {
	s.Out.Reset()
}

// HasText is a helper method to assert that the out stream contains the supplied
// text somewhere
func (s *testSuite) HasText(texts ...string) {
	outStr := s.Out.String()
	for _, t := range texts {
		s.Contains(outStr, t)
	}
}

// WriteFile writes the file in the suite folder and returns its path
func (s *testSuite) WriteFile(name string, data []byte) string {
	fn := filepath.Join(s.tmpdir, name)
	s.Require().NoError(os.WriteFile(fn, data, 0o600))
	return fn
}

// TakeOut returns the output and resets the buffer
func (s *testSuite) TakeOut() string {
	out := s.Out.String()
	s.Out.Reset()
	return out
}

func TestSuite(t *testing.T) {
	suite.Run(t, new(testSuite))
}
