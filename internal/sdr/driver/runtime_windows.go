//go:build windows

package driver

import (
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
)

// FindRuntime looks for bin/<vendor>/windows/<arch>/<runtime>.exe next to the
// executable, then in the working directory, and finally in PATH
func FindRuntime(runtime string) (string, error) {
	var dirs []string

	if exePath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exePath))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}

	arch := goruntime.GOARCH
	if arch == "amd64" {
		arch = "x64"
	}

	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "bin", "*", "windows", arch, runtime+".exe"))
		if err != nil || len(matches) == 0 {
			continue // continue to next directory
		}

		if _, err = os.Stat(matches[0]); err != nil {
			continue
		}
		return matches[0], nil
	}

	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", NewRuntimeError("failed to find binary '%s': %w", runtime, err)
	}
	return binPath, nil
}
