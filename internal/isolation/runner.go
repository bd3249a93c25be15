// Package isolation runs a single plugin request inside a sandboxed child
// process bounded by a virtual-memory cap, a CPU-time cap, and a wall-clock
// timeout, returning a well-formed IsolationResult. Resource limits are
// POSIX-only and best-effort elsewhere; the wall-clock timeout is always
// enforced externally regardless of platform.
package isolation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mystiatech/conductor/internal/clog"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/metrics"
)

// Loader builds the *exec.Cmd that runs a plugin's handler in a child
// process. Production wiring points this at a minimal loader binary that
// imports the named plugin and invokes handle_request with the request
// JSON on stdin, emitting the response as a single JSON line on stdout.
type Loader func(ctx context.Context, pluginName string, requestJSON []byte, pluginCode string) *exec.Cmd

// Runner executes isolated plugin invocations.
type Runner struct {
	loader  Loader
	metrics *metrics.Registry

	memoryLimitMB  int
	timeoutSeconds int

	mu  sync.Mutex
	pid map[int]*exec.Cmd
}

// New constructs a Runner. loader must not be nil in production; tests may
// supply a loader that runs a trivial local command instead of the real
// plugin loader binary.
func New(loader Loader, memoryLimitMB, timeoutSeconds int, reg *metrics.Registry) *Runner {
	if memoryLimitMB <= 0 {
		memoryLimitMB = 512
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Runner{
		loader:         loader,
		metrics:        reg,
		memoryLimitMB:  memoryLimitMB,
		timeoutSeconds: timeoutSeconds,
		pid:            map[int]*exec.Cmd{},
	}
}

// ExecuteRequest runs one request through the named plugin in a child
// process bounded by the runner's configured limits. pluginCode, if
// non-empty, is passed through to the loader for registry-driven
// (non-filesystem) plugin resolution.
func (r *Runner) ExecuteRequest(ctx context.Context, pluginName string, req conductor.Request, pluginCode string) conductor.IsolationResult {
	start := time.Now()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return r.finish(pluginName, start, conductor.IsolationResult{
			Success:  false,
			ExitCode: 1,
			Error:    fmt.Sprintf("encode request: %v", err),
		})
	}

	timeout := time.Duration(r.timeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.loader(runCtx, pluginName, reqJSON, pluginCode)
	if cmd == nil {
		return r.finish(pluginName, start, conductor.IsolationResult{
			Success:  false,
			ExitCode: 1,
			Error:    "loader returned nil command",
		})
	}

	applyResourceLimits(cmd, r.memoryLimitMB, cpuTimeLimitSeconds(r.timeoutSeconds))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return r.finish(pluginName, start, conductor.IsolationResult{
			Success:  false,
			ExitCode: 1,
			Error:    fmt.Sprintf("spawn failed: %v", err),
		})
	}

	pid := cmd.Process.Pid
	r.trackPID(pid, cmd)
	defer r.untrackPID(pid)

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		clog.Isolation().Warn().Str("plugin", pluginName).Int("pid", pid).Msg("isolated execution timed out")
		return r.finish(pluginName, start, conductor.IsolationResult{
			Success:  false,
			ExitCode: 124,
			Error:    "timeout",
			Output:   stderr.String(),
		})
	}

	exitCode := 0
	success := true
	errMsg := ""
	if waitErr != nil {
		success = false
		exitCode = 1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		errMsg = waitErr.Error()
	}

	output := strings.TrimSpace(stdout.String())

	return r.finish(pluginName, start, conductor.IsolationResult{
		Success:  success,
		Output:   output,
		Error:    errMsg,
		ExitCode: exitCode,
	})
}

func (r *Runner) finish(pluginName string, start time.Time, result conductor.IsolationResult) conductor.IsolationResult {
	result.DurationMS = time.Since(start).Milliseconds()
	if r.metrics != nil {
		r.metrics.RecordIsolationExecution(pluginName, float64(result.DurationMS))
	}
	return result
}

func (r *Runner) trackPID(pid int, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pid[pid] = cmd
}

func (r *Runner) untrackPID(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pid, pid)
}

// Shutdown kills every still-tracked child process. Used for process-wide
// teardown so no isolated child outlives the Conductor.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pid, cmd := range r.pid {
		clog.Isolation().Warn().Int("pid", pid).Msg("killing tracked child on shutdown")
		killProcessGroup(cmd)
		delete(r.pid, pid)
	}
}

// cpuTimeLimitSeconds is ceil(1.5 * timeoutSeconds) per spec.
func cpuTimeLimitSeconds(timeoutSeconds int) int {
	return int(math.Ceil(1.5 * float64(timeoutSeconds)))
}
