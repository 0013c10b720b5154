package kernel

import (
	"strconv"
	"strings"
)

const (
	// ModeSequential runs the kernel single-threaded.
	ModeSequential = "seq"
	// ModeParallel runs the kernel with OpenMP threads; only this mode takes a thread count.
	ModeParallel = "omp"
)

// Command is one kernel invocation: <path> <mode> <size> [<threads>].
type Command struct {
	Path    string
	Mode    string
	Size    int
	Threads int
}

// ThreadParallel reports whether the mode takes a thread count argument.
func (c Command) ThreadParallel() bool {
	return c.Mode == ModeParallel
}

// Args returns the arguments after the executable path.
func (c Command) Args() []string {
	args := []string{c.Mode, strconv.Itoa(c.Size)}
	if c.ThreadParallel() {
		args = append(args, strconv.Itoa(c.Threads))
	}
	return args
}

// Argv returns the full command line including the executable path.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args()...)
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}
