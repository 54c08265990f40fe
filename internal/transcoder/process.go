package transcoder

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"media-streamer/internal/logging"
)

// killGracePeriod is how long a process gets to exit after SIGTERM before
// it is killed outright.
const killGracePeriod = 5 * time.Second

// Process is a handle on one running transcoding subprocess.
type Process struct {
	cmd    *exec.Cmd
	parser *ProgressParser

	mu       sync.Mutex
	progress ProgressEvent
	done     chan struct{}
	exitErr  error
}

// OnProgress is invoked for every parsed progress event. Callbacks run on
// the monitor goroutine and must not block.
type OnProgress func(ProgressEvent)

// Spawn launches ffmpeg with the given arguments and starts monitoring
// its diagnostic stream. A spawn error (binary missing, permissions) is
// returned immediately and affects only this invocation.
func Spawn(ffmpegPath string, args []string, onProgress OnProgress) (*Process, error) {
	cmd := exec.Command(ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", ffmpegPath, err)
	}

	p := &Process{
		cmd:    cmd,
		parser: NewProgressParser(),
		done:   make(chan struct{}),
	}

	go p.monitor(stderr, onProgress)

	return p, nil
}

// monitor reads engine output until EOF, then reaps the process.
func (p *Process) monitor(stderr io.ReadCloser, onProgress OnProgress) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		event, ok := p.parser.ParseLine(scanner.Text())
		if !ok {
			continue
		}

		p.mu.Lock()
		if event.CurrentSeconds > 0 {
			p.progress.CurrentSeconds = event.CurrentSeconds
		}
		if event.TotalSeconds > 0 {
			p.progress.TotalSeconds = event.TotalSeconds
		}
		if event.Speed > 0 {
			p.progress.Speed = event.Speed
		}
		snapshot := p.progress
		p.mu.Unlock()

		if onProgress != nil {
			onProgress(snapshot)
		}
	}

	err := p.cmd.Wait()

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	close(p.done)

	if err != nil {
		logging.Debug("Transcoder process %d exited: %v", p.Pid(), err)
	}
}

// Pid returns the subprocess pid, or 0 if it never started.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Progress returns the most recent progress snapshot.
func (p *Process) Progress() ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Done returns a channel closed when the subprocess has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the subprocess is still alive.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitError returns the error from Wait, valid once Done is closed.
// A non-zero exit surfaces here as *exec.ExitError with the code recorded.
func (p *Process) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// ExitCode returns the subprocess exit code, or -1 while it is running.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Stop terminates the subprocess gracefully: SIGTERM first, escalating to
// SIGKILL if it has not exited within the grace period. Blocks until the
// process is gone.
func (p *Process) Stop() {
	if p.cmd.Process == nil {
		return
	}

	select {
	case <-p.done:
		return
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.Debug("SIGTERM failed for pid %d: %v", p.Pid(), err)
	}

	select {
	case <-p.done:
	case <-time.After(killGracePeriod):
		logging.Warn("Transcoder process %d did not exit after SIGTERM, killing", p.Pid())
		if err := p.cmd.Process.Kill(); err != nil {
			logging.Warn("Failed to kill transcoder process %d: %v", p.Pid(), err)
		}
		<-p.done
	}
}

// Kill terminates the subprocess immediately without the grace period.
func (p *Process) Kill() {
	if p.cmd.Process == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil {
		logging.Debug("Kill failed for pid %d: %v", p.Pid(), err)
	}
	<-p.done
}
