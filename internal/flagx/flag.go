// Package flagx lets several loaders share os.Args: each parses only the
// flags it defines and skips the rest.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// ParseKnown parses args into fs, keeping only the flags fs defines.
// Both "-name value" and "-name=value" forms are accepted. A token starting
// with '-' is never taken as a value, and boolean flags never consume the
// following argument, so "-offline token" leaves "token" alone.
func ParseKnown(fs *flag.FlagSet, args []string) error {
	return fs.Parse(known(fs, args))
}

func known(fs *flag.FlagSet, args []string) []string {
	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		f := lookup(fs, args[i])
		if f == nil {
			continue
		}
		out = append(out, args[i])
		if strings.Contains(args[i], "=") || isBool(f) {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, args[i])
		}
	}

	return out
}

// lookup resolves "-name", "--name" and "-name=value" to fs's flag.
func lookup(fs *flag.FlagSet, arg string) *flag.Flag {
	name, ok := strings.CutPrefix(arg, "-")
	if !ok {
		return nil
	}
	name = strings.TrimPrefix(name, "-")
	name, _, _ = strings.Cut(name, "=")
	if name == "" {
		return nil
	}
	return fs.Lookup(name)
}

func isBool(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// ConfigPath returns the config file given with -c or -config in args, or
// "" when neither is present. The last occurrence wins.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = ParseKnown(fs, args)

	return path
}
