package invoker

import (
	"strings"
	"unicode"
)

// shellSpecial are the metacharacters that force an argument to be quoted
// when a command line is handed to a shell for interpretation.
const shellSpecial = `&|<>^"`

// needsQuoting reports whether arg must be wrapped in double quotes before
// shell interpretation: any whitespace or shell metacharacter triggers it.
func needsQuoting(arg string) bool {
	if arg == "" {
		return true
	}
	for _, r := range arg {
		if unicode.IsSpace(r) || strings.ContainsRune(shellSpecial, r) {
			return true
		}
	}
	return false
}

// EscapeArg prepares a single argument for inclusion in a shell command
// line. Arguments containing whitespace or any of & | < > ^ " are wrapped
// in double quotes with embedded double quotes backslash-escaped; all
// other arguments pass through verbatim.
func EscapeArg(arg string) string {
	if !needsQuoting(arg) {
		return arg
	}
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}

// BuildCommandLine assembles a full shell command line from an executable
// and its arguments, escaping each token independently.
func BuildCommandLine(exe string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, EscapeArg(exe))
	for _, a := range args {
		parts = append(parts, EscapeArg(a))
	}
	return strings.Join(parts, " ")
}
