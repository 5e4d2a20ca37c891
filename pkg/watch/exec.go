package watch

import (
	"bytes"
	"context"
	"os"
	"os/exec"
)

// runShell executes a rule's command through the shell with the
// hand-off context exposed as environment variables. The context
// bounds the run; a hung command is killed when it expires.
func runShell(ctx context.Context, shell, dir string, env map[string]string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", shell)
	if dir != "" {
		cmd.Dir = dir
	}

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}
