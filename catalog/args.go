package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultValuePattern restricts values of arguments that don't declare their
// own pattern.
const DefaultValuePattern = `^[A-Za-z0-9_\[\]@.,:/+= -]{0,256}$`

// ErrInvalidArguments is returned when user supplied arguments don't match
// the declared schema of a script.
var ErrInvalidArguments = errors.New("invalid arguments")

var defaultValueRe = regexp.MustCompile(DefaultValuePattern)

// ValidateArgs checks a flat list of flag/value pairs against the declared
// arguments of the script. It does no I/O.
//
// Only declared flags are accepted, values must match the argument pattern
// and may never start with "-", and every required argument must be present.
func (s *Script) ValidateArgs(values []string) error {
	if len(values)%2 != 0 {
		return fmt.Errorf("%w: arguments must be in flag/value pairs", ErrInvalidArguments)
	}

	declared := make(map[string]*Arg, len(s.Args))
	for i := range s.Args {
		declared[s.Args[i].Flag()] = &s.Args[i]
	}

	present := make(map[string]bool, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		flag, value := values[i], values[i+1]

		arg, ok := declared[flag]
		if !ok {
			return fmt.Errorf("%w: unexpected flag %q", ErrInvalidArguments, flag)
		}
		if present[flag] {
			return fmt.Errorf("%w: duplicate flag %q", ErrInvalidArguments, flag)
		}
		present[flag] = true

		if strings.HasPrefix(value, "-") || !arg.matches(value) {
			return fmt.Errorf("%w: invalid value for %s: %q", ErrInvalidArguments, flag, value)
		}
	}

	for _, a := range s.Args {
		if a.Required && !present[a.Flag()] {
			return fmt.Errorf("%w: missing required flag %s", ErrInvalidArguments, a.Flag())
		}
	}
	return nil
}

// ArgVector converts named values (as submitted by a form) into a flat
// flag/value list in declaration order. Empty values fall back to the
// declared default; arguments that are still empty are omitted. Names that
// are not declared are kept at the end so ValidateArgs can reject them.
func (s *Script) ArgVector(values map[string]string) []string {
	result := make([]string, 0, len(values)*2)
	used := make(map[string]bool, len(values))

	for _, a := range s.Args {
		used[a.Name] = true
		v := values[a.Name]
		if v == "" {
			v = a.Default
		}
		if v == "" {
			continue
		}
		result = append(result, a.Flag(), v)
	}

	var unknown []string
	for name := range values {
		if !used[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		result = append(result, "--"+name, values[name])
	}
	return result
}

func (a *Arg) matches(value string) bool {
	if a.re == nil {
		return defaultValueRe.MatchString(value)
	}
	return a.re.MatchString(value)
}
