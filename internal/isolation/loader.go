package isolation

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
)

// ScriptLoader returns a Loader that resolves a plugin name to an
// executable under dir (dir/<pluginName>) and feeds it the request JSON on
// stdin, mirroring the subprocess-per-invocation model the sandboxed
// runner expects. If pluginCode is non-empty, it is appended as a single
// trailing argument to that executable, letting registry-driven
// deployments pass an inline script reference; the executable at
// dir/<pluginName> must still exist on disk.
func ScriptLoader(dir string) Loader {
	return func(ctx context.Context, pluginName string, requestJSON []byte, pluginCode string) *exec.Cmd {
		path := filepath.Join(dir, pluginName)

		var args []string
		if pluginCode != "" {
			args = []string{pluginCode}
		}

		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Stdin = bytes.NewReader(requestJSON)
		return cmd
	}
}
