// Package launch supervises the configured gateway daemons as child
// processes, restarting crashed ones with exponential backoff.
package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"eris/internal/config"
)

// RunnerConfig provides configuration for the service runner.
type RunnerConfig struct {
	MaxBackoffDuration time.Duration // time before giving up on exponential backoff and using RetryInterval
	RetryInterval      time.Duration // interval to wait once MaxBackoffDuration is reached
	Config             *config.Config
}

// Default backoff configurations
const (
	InitialBackoff = 1 * time.Second
	MaxBackoffStep = 30 * time.Second // cap the step size of exponential backoff
)

// Runner manages the lifecycle of multiple service processes.
type Runner struct {
	rc      RunnerConfig
	baseDir string
	log     *logrus.Logger
}

// NewRunner creates a new Runner based on the provided configuration.
// Services are resolved relative to the launcher's own executable, so
// a deployment is a single directory of binaries plus a config file.
func NewRunner(rc RunnerConfig) (*Runner, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	return &Runner{
		rc:      rc,
		baseDir: filepath.Dir(exePath),
		log:     logrus.StandardLogger(),
	}, nil
}

// WithLogger directs the runner's own messages to log. Service output
// still goes to stdout and stderr, line-prefixed.
func (r *Runner) WithLogger(log *logrus.Logger) *Runner {
	r.log = log
	return r
}

// Start launches all configured services and blocks until the context
// is canceled.
func (r *Runner) Start(ctx context.Context) {
	for i := range r.rc.Config.Services {
		sc := r.rc.Config.Services[i]
		go r.runService(ctx, sc)
	}
	<-ctx.Done()
}

func (r *Runner) runService(ctx context.Context, sc config.ServiceConfig) {
	var backoff time.Duration
	var firstCrashTime time.Time

	log := r.log.WithField("service", sc.Command)

	for {
		// Select delay if we are backing off
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}

		args := make([]string, 0, len(sc.Args))
		for k, v := range sc.Args {
			args = append(args, fmt.Sprintf("--%s=%s", k, v))
		}

		cmdPath := filepath.Join(r.baseDir, filepath.Base(sc.Command))
		cmd := exec.CommandContext(ctx, cmdPath, args...)
		cmd.Dir = r.baseDir
		cmd.Stdout = &prefixWriter{cmd: cmd, name: sc.Command, out: os.Stdout}
		cmd.Stderr = &prefixWriter{cmd: cmd, name: sc.Command, out: os.Stderr}

		log.WithField("args", args).Info("starting service")
		startTime := time.Now()

		err := cmd.Run()

		if ctx.Err() != nil {
			return // Context canceled, shutting down
		}

		uptime := time.Since(startTime)
		log.WithField("uptime", uptime).WithError(err).Info("service exited")

		if uptime > 30*time.Second {
			// Process lived for a while, reset backoff
			backoff = 0
			firstCrashTime = time.Time{}
		}

		if firstCrashTime.IsZero() {
			firstCrashTime = time.Now()
		}

		// Calculate backoff
		if backoff == 0 {
			backoff = InitialBackoff
		} else {
			backoff *= 2
			if backoff > MaxBackoffStep {
				backoff = MaxBackoffStep
			}
		}

		if time.Since(firstCrashTime) > r.rc.MaxBackoffDuration {
			log.Warnf("failing for over %v, waiting %v before the next attempt", r.rc.MaxBackoffDuration, r.rc.RetryInterval)
			backoff = r.rc.RetryInterval
			// Reset the crash clock so the next failure starts the
			// exponential ramp again after the long wait.
			firstCrashTime = time.Time{}
		} else {
			log.Infof("restarting in %v", backoff)
		}
	}
}

// prefixWriter tags every output line of a child process with its
// command name and pid.
type prefixWriter struct {
	cmd  *exec.Cmd
	name string
	out  io.Writer
	line []byte
}

func (w *prefixWriter) Write(p []byte) (n int, err error) {
	for _, b := range p {
		w.line = append(w.line, b)
		if b == '\n' {
			pid := -1
			if w.cmd != nil && w.cmd.Process != nil {
				pid = w.cmd.Process.Pid
			}
			fmt.Fprintf(w.out, "[%s:%d] %s", w.name, pid, string(w.line))
			w.line = w.line[:0]
		}
	}
	return len(p), nil
}
