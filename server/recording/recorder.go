package recording

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Recorder is the capture device handle owned by the Controller.
// Implementations must tolerate Stop without a prior Start.
type Recorder interface {
	Start(path string) error
	Stop() error
}

// CommandRecorder captures audio by running a configured capture
// command(e.g. "arecord -f cd") with the output path appended as its
// final argument.
type CommandRecorder struct {
	command string
	cmd     *exec.Cmd
}

func NewCommandRecorder(command string) *CommandRecorder {
	return &CommandRecorder{command: command}
}

func (r *CommandRecorder) Start(path string) error {
	if r.cmd != nil {
		return fmt.Errorf("capture command already running")
	}

	args := strings.Fields(r.command)
	if len(args) == 0 {
		return fmt.Errorf("no capture command configured")
	}

	cmd := exec.Command(args[0], append(args[1:], path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start capture command: %v", err)
	}

	r.cmd = cmd
	return nil
}

func (r *CommandRecorder) Stop() error {
	if r.cmd == nil {
		return nil
	}

	cmd := r.cmd
	r.cmd = nil

	// Ask the capture process to finalize its output, then give it a
	// moment before killing it outright.
	if err := cmd.Process.Signal(interruptSignal); err != nil {
		cmd.Process.Kill()
		return fmt.Errorf("interrupt capture command: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		cmd.Process.Kill()
		<-done
		return fmt.Errorf("capture command did not exit, killed")
	}
}
