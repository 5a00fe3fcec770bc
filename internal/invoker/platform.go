package invoker

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Platform captures the host capabilities that decide between the direct
// and shell spawn strategies. Call sites never branch on the OS name; they
// ask the Platform whether a resolved executable needs shell interpretation.
type Platform struct {
	// shellShimExts are executable extensions that cannot be spawned
	// directly and must go through the shell (cmd.exe batch shims).
	shellShimExts []string
	// shell is the interpreter used for shim executables, with the flag
	// that introduces the command string.
	shell     string
	shellFlag string
}

// HostPlatform returns the Platform for the current operating system.
// This is the single place OS detection happens.
func HostPlatform() Platform {
	if runtime.GOOS == "windows" {
		return Platform{
			shellShimExts: []string{".cmd", ".bat"},
			shell:         "cmd.exe",
			shellFlag:     "/C",
		}
	}
	return Platform{}
}

// RequiresShell reports whether the resolved executable path must be
// invoked through a shell rather than spawned directly.
func (p Platform) RequiresShell(resolvedPath string) bool {
	ext := strings.ToLower(filepath.Ext(resolvedPath))
	for _, shim := range p.shellShimExts {
		if ext == shim {
			return true
		}
	}
	return false
}

// ShellInvocation returns the interpreter argv prefix for running a
// shell-escaped command line, e.g. ["cmd.exe", "/C"].
func (p Platform) ShellInvocation() (string, string) {
	return p.shell, p.shellFlag
}
