//go:build !windows

package driver

import (
	"errors"
	"os/exec"
)

// FindRuntime locates the external tool binary in PATH
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", NewRuntimeError("`%s` not found in PATH: %w", runtime, err)
		}
		return "", NewRuntimeError("failed to locate `%s`: %w", runtime, err)
	}

	return binPath, nil
}
