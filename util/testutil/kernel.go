package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteKernelScript writes an executable /bin/sh script standing in for the image
// kernel and returns its path. body receives the kernel arguments as $1 (mode),
// $2 (size) and $3 (threads).
func WriteKernelScript(t testing.TB, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "edge_sobel")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write kernel script: %v", err)
	}
	return path
}

// Ready-made kernel bodies used across packages.
const (
	// KernelOK prints the marker the way the real kernel does.
	KernelOK = `if [ "$1" = "omp" ]; then
  echo "MODE=OPENMP N=$2 threads=$3 time_ms=12.5"
else
  echo "MODE=SEQUENTIAL N=$2 time_ms=7.25"
fi
echo "Output snippet:"
echo "0 0 0 0"`

	// KernelNoMarker succeeds without reporting its own time.
	KernelNoMarker = `echo "done"`

	// KernelBoom fails the way a broken replica does.
	KernelBoom = `echo "boom" >&2
exit 1`

	// KernelSlow runs for longer than any test deadline.
	KernelSlow = `sleep 5
echo "time_ms=5000"`
)
