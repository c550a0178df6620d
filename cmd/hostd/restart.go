package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// restartEnv marks a process started by execRestarter. It must not hand its
// arguments to the instance that is shutting down. The value restartAlongside
// marks the replacement of a host that ran beside another one.
const (
	restartEnv       = "BROWSERHOST_RESTARTED"
	restartAlongside = "alongside"
)

// execRestarter starts a fresh copy of the executable and stops this one.
type execRestarter struct {
	logger    *zap.Logger
	stop      context.CancelFunc
	alongside bool
}

func (r *execRestarter) Restart(args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	cmd := exec.Command(exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	marker := "1"
	if r.alongside {
		marker = restartAlongside
	}
	cmd.Env = append(os.Environ(), restartEnv+"="+marker)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", exe, err)
	}
	r.logger.Info("restarting", zap.Strings("args", args), zap.Int("pid", cmd.Process.Pid))
	_ = cmd.Process.Release()
	r.stop()
	return nil
}
