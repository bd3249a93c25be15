//go:build windows

package isolation

import "os/exec"

// applyResourceLimits is a no-op on Windows: memory/CPU-time rlimits are
// POSIX-only. The wall-clock timeout enforced by ExecuteRequest's context
// remains authoritative on every platform.
func applyResourceLimits(cmd *exec.Cmd, memoryLimitMB, cpuTimeLimitSeconds int) {}

// killProcessGroup kills just the process; Windows process groups require
// job objects, out of scope for this best-effort path.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
