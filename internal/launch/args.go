// Package launch parses the argument vector the host is started with, and the
// one forwarded when a second instance is launched.
package launch

import (
	"fmt"
	"strings"

	goflags "github.com/jessevdk/go-flags"
)

// Args holds the switches the host understands. Everything else on the
// command line (engine switches, the executable path) is ignored.
type Args struct {
	Incognito     bool   `long:"incognito" description:"Start a throwaway incognito session"`
	ProfileID     string `long:"profile" description:"Open the given profile directly"`
	SelectProfile bool   `long:"select-profile" description:"Show the profile picker"`

	URLs []string `no-flag:"true"`
}

// Parse parses argv without the executable name.
func Parse(argv []string) (Args, error) {
	var args Args
	parser := goflags.NewParser(&args, goflags.IgnoreUnknown|goflags.PassDoubleDash)
	rest, err := parser.ParseArgs(argv)
	if err != nil {
		return Args{}, fmt.Errorf("parse launch args: %w", err)
	}
	for _, arg := range rest {
		if isURL(arg) {
			args.URLs = append(args.URLs, arg)
		}
	}
	args.ProfileID = strings.TrimSpace(args.ProfileID)
	return args, nil
}

// ParseSecondInstance parses argv as forwarded by a second process, where
// argv[0] is that process's executable.
func ParseSecondInstance(argv []string) (Args, error) {
	if len(argv) > 0 && !strings.HasPrefix(argv[0], "-") && !isURL(argv[0]) {
		argv = argv[1:]
	}
	return Parse(argv)
}

func isURL(arg string) bool {
	i := strings.Index(arg, "://")
	if i <= 0 {
		return false
	}
	for _, r := range arg[:i] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}
