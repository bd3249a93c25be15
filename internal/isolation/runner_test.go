package isolation

import (
	"context"
	"os/exec"
	"testing"

	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/stretchr/testify/assert"
)

func echoLoader(ctx context.Context, pluginName string, requestJSON []byte, pluginCode string) *exec.Cmd {
	return exec.CommandContext(ctx, "echo", string(requestJSON))
}

func failingLoader(ctx context.Context, pluginName string, requestJSON []byte, pluginCode string) *exec.Cmd {
	return exec.CommandContext(ctx, "false")
}

func hangingLoader(ctx context.Context, pluginName string, requestJSON []byte, pluginCode string) *exec.Cmd {
	return exec.CommandContext(ctx, "sleep", "5")
}

func TestExecuteRequestSuccess(t *testing.T) {
	r := New(echoLoader, 512, 30, nil)
	result := r.ExecuteRequest(context.Background(), "discord", conductor.Request{ID: "r1"}, "")
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecuteRequestNonZeroExit(t *testing.T) {
	r := New(failingLoader, 512, 30, nil)
	result := r.ExecuteRequest(context.Background(), "discord", conductor.Request{ID: "r1"}, "")
	assert.False(t, result.Success)
	assert.NotEqual(t, 0, result.ExitCode)
}

func TestExecuteRequestTimeout(t *testing.T) {
	r := New(hangingLoader, 512, 1, nil)
	result := r.ExecuteRequest(context.Background(), "discord", conductor.Request{ID: "r1"}, "")
	assert.False(t, result.Success)
	assert.Equal(t, 124, result.ExitCode)
	assert.Equal(t, "timeout", result.Error)
}

func TestExecuteRequestNilLoaderCommand(t *testing.T) {
	r := New(func(ctx context.Context, pluginName string, requestJSON []byte, pluginCode string) *exec.Cmd {
		return nil
	}, 512, 30, nil)
	result := r.ExecuteRequest(context.Background(), "discord", conductor.Request{ID: "r1"}, "")
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ExitCode)
}

func TestShutdownClearsTrackedPIDs(t *testing.T) {
	r := New(hangingLoader, 512, 30, nil)
	done := make(chan struct{})
	go func() {
		r.ExecuteRequest(context.Background(), "discord", conductor.Request{ID: "r1"}, "")
		close(done)
	}()
	r.Shutdown()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Empty(t, r.pid)
}
