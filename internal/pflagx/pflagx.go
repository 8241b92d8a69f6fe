// Package pflagx adds slog levels and environment defaults to pflag.
package pflagx

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/spf13/pflag"
)

type FlagSet pflag.FlagSet

func Ext(fs *pflag.FlagSet) *FlagSet {
	return (*FlagSet)(fs)
}

func (fs *FlagSet) FlagSet() *pflag.FlagSet {
	return (*pflag.FlagSet)(fs)
}

// LevelP defines a slog level flag on the command line.
func LevelP(name, shorthand string, value slog.Level, usage string) *slog.LevelVar {
	return Ext(pflag.CommandLine).LevelP(name, shorthand, value, usage)
}

func (fs *FlagSet) LevelP(name, shorthand string, value slog.Level, usage string) *slog.LevelVar {
	level := new(slog.LevelVar)
	def := new(slog.LevelVar)
	def.Set(value)
	fs.FlagSet().TextVarP(level, name, shorthand, def, usage)
	return level
}

// ParseEnv sets command line flags from environment variables named prefix
// followed by the upper-cased flag name with dashes as underscores.
func ParseEnv(prefix string) error {
	return Ext(pflag.CommandLine).ParseEnv(prefix, os.Environ())
}

// ParseEnv sets flags from the KEY=VALUE pairs in env that start with
// prefix. Unknown flags are reported to the flag set's output and skipped.
func (fs *FlagSet) ParseEnv(prefix string, env []string) error {
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		s, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		n := strings.Map(func(r rune) rune {
			if r == '_' {
				return '-'
			}
			return unicode.ToLower(r)
		}, s)
		f := fs.FlagSet().Lookup(n)
		if f == nil {
			fmt.Fprintf(fs.FlagSet().Output(), "env %s: unknown flag --%s\n", k, n)
			continue
		}
		if err := f.Value.Set(v); err != nil {
			return fmt.Errorf("env %s: flag --%s: invalid argument: %w", k, n, err)
		}
		f.Changed = true
	}
	return nil
}
