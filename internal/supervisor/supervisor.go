// Package supervisor owns the external provider's operating-system
// process lifetime: start, unexpected-exit detection, duplicate-start
// prevention, and cleanup on orchestrator shutdown.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Supervisor ensures at most one provider process is active process-wide.
// It is shared state across request handlers; the starting flag under the
// mutex keeps concurrent EnsureRunning calls from spawning twice.
type Supervisor struct {
	command []string
	dir     string
	logger  *slog.Logger

	mu       sync.Mutex
	starting bool
	h        *handle
}

type handle struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// New creates a Supervisor for the given provider command line. An empty
// command makes the supervisor inert: the provider is managed externally
// and health probes alone decide availability.
func New(command []string, dir string) *Supervisor {
	return &Supervisor{
		command: command,
		dir:     dir,
		logger:  slog.Default(),
	}
}

// Managed reports whether this supervisor owns a provider command line.
func (s *Supervisor) Managed() bool {
	return len(s.command) > 0
}

// Running reports whether a tracked provider process is currently alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h != nil
}

// EnsureRunning starts the provider process unless one is already tracked
// or a start is in flight. A spawn failure is returned for the caller to
// log; the next health probe reports unhealthy and jobs fail fast at the
// gate.
func (s *Supervisor) EnsureRunning() error {
	s.mu.Lock()
	if len(s.command) == 0 || s.h != nil || s.starting {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	s.mu.Unlock()

	cmd := exec.Command(s.command[0], s.command[1:]...)
	cmd.Dir = s.dir
	// Own process group so Stop can take out grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.clearStarting()
		return fmt.Errorf("piping provider stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.clearStarting()
		return fmt.Errorf("piping provider stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.clearStarting()
		return fmt.Errorf("starting provider process: %w", err)
	}

	h := &handle{cmd: cmd, done: make(chan struct{})}
	s.mu.Lock()
	s.starting = false
	s.h = h
	s.mu.Unlock()

	s.logger.Info("provider process started", "pid", cmd.Process.Pid, "command", s.command[0])

	go s.pipe(stdout, "stdout")
	go s.pipe(stderr, "stderr")
	go s.watch(h)

	return nil
}

func (s *Supervisor) clearStarting() {
	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()
}

// pipe forwards the provider's output line-wise into the logging sink.
func (s *Supervisor) pipe(r io.Reader, stream string) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		s.logger.Info("provider output", "stream", stream, "line", sc.Text())
	}
}

// watch clears the tracked handle when the process exits, so a crashed
// provider can be restarted by the next EnsureRunning call.
func (s *Supervisor) watch(h *handle) {
	err := h.cmd.Wait()
	close(h.done)

	s.mu.Lock()
	restartable := s.h == h
	if restartable {
		s.h = nil
	}
	s.mu.Unlock()

	if restartable {
		s.logger.Warn("provider process exited", "pid", h.cmd.Process.Pid, "error", err)
	}
}

// Stop terminates the provider's entire process group: SIGTERM first,
// SIGKILL after a grace period. Safe to call when nothing is running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	h := s.h
	s.h = nil
	s.mu.Unlock()

	if h == nil || h.cmd.Process == nil {
		return
	}

	pgid := h.cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		s.logger.Warn("signalling provider process group", "pgid", pgid, "error", err)
		return
	}

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("provider did not exit after SIGTERM, killing process group", "pgid", pgid)
		syscall.Kill(-pgid, syscall.SIGKILL)
		<-h.done
	}
	s.logger.Info("provider process stopped", "pgid", pgid)
}
