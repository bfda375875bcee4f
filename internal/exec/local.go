package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"sync"

	"github.com/rileyhilliard/fleet/internal/errors"
)

// LocalExecutor runs commands on this machine without a shell. Arguments
// are passed as a vector, so metacharacters in values are inert.
type LocalExecutor struct{}

// NewLocalExecutor returns a LocalExecutor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// lockedWriter lets several processes share one stderr buffer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Run starts every stage, connecting each stdout to the next stdin with an
// OS pipe, and waits for all of them. The exit code is the last stage's,
// matching a shell pipeline without pipefail.
func (l *LocalExecutor) Run(ctx context.Context, stages []Command, workDir string, stdin io.Reader) (stdout, stderr []byte, exitCode int, err error) {
	var outBuf, errBuf bytes.Buffer
	errW := &lockedWriter{w: &errBuf}

	cmds := make([]*osexec.Cmd, len(stages))
	for i, s := range stages {
		c := osexec.CommandContext(ctx, s.Name, s.Args...)
		c.Dir = workDir
		c.Stderr = errW
		cmds[i] = c
	}
	cmds[0].Stdin = stdin

	// Parent-side pipe ends, closed once the children hold them.
	var parentEnds []*os.File
	closeParentEnds := func() {
		for _, f := range parentEnds {
			_ = f.Close()
		}
		parentEnds = nil
	}
	defer closeParentEnds()

	for i := 0; i < len(cmds)-1; i++ {
		r, w, perr := os.Pipe()
		if perr != nil {
			return nil, nil, -1, errors.WrapWithCode(perr, errors.ErrExec,
				"Couldn't create a pipe between commands",
				"This shouldn't happen - please report this bug!")
		}
		cmds[i].Stdout = w
		cmds[i+1].Stdin = r
		parentEnds = append(parentEnds, r, w)
	}

	last := stages[len(stages)-1]
	if last.Output != "" {
		f, ferr := os.OpenFile(last.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if ferr != nil {
			return nil, nil, -1, errors.WrapWithCode(ferr, errors.ErrExec,
				"Couldn't open the output file",
				"Check the destination directory exists and is writable").WithParam("path")
		}
		defer f.Close()
		cmds[len(cmds)-1].Stdout = f
	} else {
		cmds[len(cmds)-1].Stdout = &outBuf
	}

	// A missing program behaves as in a shell: "name: command not found" on
	// stderr, the rest of the pipeline still runs, and exit 127 when it was
	// the last stage.
	started := make([]bool, len(cmds))
	missingLast := false
	for i, c := range cmds {
		serr := c.Start()
		if serr == nil {
			started[i] = true
			continue
		}
		if stderrors.Is(serr, osexec.ErrNotFound) {
			fmt.Fprintf(errW, "%s: command not found\n", stages[i].Name)
			missingLast = i == len(cmds)-1
			continue
		}
		err = errors.WrapWithCode(serr, errors.ErrExec,
			"Couldn't start the command",
			"Make sure the command exists and is executable.")
		break
	}
	closeParentEnds()

	var lastErr error
	for i, c := range cmds {
		if !started[i] {
			continue
		}
		werr := c.Wait()
		if i == len(cmds)-1 {
			lastErr = werr
		}
	}
	if err != nil {
		return outBuf.Bytes(), errBuf.Bytes(), -1, err
	}
	if ctx.Err() != nil {
		return outBuf.Bytes(), errBuf.Bytes(), -1, ctx.Err()
	}
	if missingLast {
		return outBuf.Bytes(), errBuf.Bytes(), 127, nil
	}
	if lastErr != nil {
		var exitErr *osexec.ExitError
		if stderrors.As(lastErr, &exitErr) {
			return outBuf.Bytes(), errBuf.Bytes(), exitErr.ExitCode(), nil
		}
		return outBuf.Bytes(), errBuf.Bytes(), -1, errors.WrapWithCode(lastErr, errors.ErrExec,
			"Failed to execute local command",
			"Check that the command exists and is executable")
	}
	return outBuf.Bytes(), errBuf.Bytes(), 0, nil
}
