package toolbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/airbusgeo/alos2-ingester/service/log"
	"go.uber.org/zap/zapcore"
)

// ExecRunner runs the tools installed on the host
type ExecRunner struct {
	// Envs are appended to the environment of the process
	Envs []string
}

// NewExecRunner creates a runner that executes the tools on the host
func NewExecRunner(envs ...string) *ExecRunner {
	return &ExecRunner{Envs: envs}
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, workdir, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = workdir
	if len(r.Envs) > 0 {
		cmd.Env = append(os.Environ(), r.Envs...)
	}
	filter := NewFilter(name)
	if err := log.Exec(ctx, cmd, log.StdoutLevel(zapcore.DebugLevel), log.WithFilter(filter)); err != nil {
		return fmt.Errorf("run[%s]: %w", log.CmdString(cmd), WrapError(filter, err))
	}
	return nil
}
