package version

import "fmt"

// Set by the linker with -ldflags -X
var (
	major  = "0"
	minor  = "1"
	commit = "0"
)

// Info describes the build
type Info struct {
	Major  string
	Minor  string
	Commit string
}

// Current returns the current build info
func Current() Info {
	return Info{Major: major, Minor: minor, Commit: commit}
}

func (v Info) String() string {
	return fmt.Sprintf("%s.%s.%s", v.Major, v.Minor, v.Commit)
}
