package process

import "runtime"

// DefaultShell returns the argv prefix used to run ad hoc command lines.
func DefaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/c"}
	}
	return []string{"/bin/sh", "-c"}
}

// ShellArgv appends a command line to a shell prefix. A nil or empty shell
// falls back to DefaultShell.
func ShellArgv(shell []string, commandLine string) []string {
	if len(shell) == 0 {
		shell = DefaultShell()
	}
	argv := make([]string, 0, len(shell)+1)
	argv = append(argv, shell...)
	return append(argv, commandLine)
}
