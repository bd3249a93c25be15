//go:build !windows

package isolation

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// applyResourceLimits puts the child in its own process group (so the whole
// group can be killed on timeout) and re-wraps the command through a shell
// `ulimit` prologue so the address-space and CPU-time caps apply to the
// child, not to this process. A syscall-level Setrlimit call here would
// apply to the parent before fork+exec, which is not what we want; ulimit
// inside the shell that execs the real binary is the POSIX-portable way to
// bound only the child. Best-effort: if the child has no /bin/sh, limits
// are simply not applied and the wall-clock timeout remains authoritative.
func applyResourceLimits(cmd *exec.Cmd, memoryLimitMB, cpuTimeLimitSeconds int) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true

	if _, err := os.Stat("/bin/sh"); err != nil {
		return
	}

	addressSpaceKB := memoryLimitMB * 1024
	prologue := fmt.Sprintf("ulimit -v %d; ulimit -t %d; exec \"$0\" \"$@\"", addressSpaceKB, cpuTimeLimitSeconds)

	args := append([]string{prologue, cmd.Path}, cmd.Args[1:]...)
	cmd.Args = append([]string{"/bin/sh", "-c"}, args...)
	cmd.Path = "/bin/sh"
}

// killProcessGroup sends SIGKILL to the child's entire process group.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
