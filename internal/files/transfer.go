package files

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/exec"
	"github.com/rileyhilliard/fleet/internal/security"
	"golang.org/x/sync/errgroup"
)

// TransferFile copies srcPath on src to dstPath on dst. The source size is
// read first and is what BytesTransferred reports. Streamed and piped
// copies are checked against it on the target afterwards.
//
// Same host: cp. Two remote hosts: the source pipes the file into ssh,
// which runs the write on the target; the source host needs its own
// non-interactive access to the target. Anything involving the local
// machine streams the content through this process.
func (s *Service) TransferFile(ctx context.Context, src config.HostConfig, srcPath string, dst config.HostConfig, dstPath string) (*TransferResult, error) {
	srcPath, err := security.ValidatePath(srcPath)
	if err != nil {
		return nil, err
	}
	dstPath, err = security.ValidatePath(dstPath)
	if err != nil {
		return nil, err
	}

	size, err := s.fileSize(ctx, src, srcPath)
	if err != nil {
		return nil, err
	}

	out := &TransferResult{
		SourceHost: src.Name,
		SourcePath: srcPath,
		TargetHost: dst.Name,
		TargetPath: dstPath,
	}
	if security.IsSensitivePath(dstPath) {
		msg := fmt.Sprintf("%s is a sensitive system location; check ownership and permissions after the transfer", dstPath)
		s.log.Warn("transfer to %s:%s: %s", dst.Name, dstPath, msg)
		out.Warnings = append(out.Warnings, msg)
	}

	switch {
	case src.Name == dst.Name:
		out.Method = MethodCopy
		err = s.copySameHost(ctx, src, srcPath, dstPath)
	case src.IsLocal() || dst.IsLocal():
		out.Method = MethodStream
		err = s.stream(ctx, src, srcPath, dst, dstPath, size)
	default:
		out.Method = MethodPipe
		var detail string
		detail, err = s.pipe(ctx, src, srcPath, dst, dstPath)
		if err == nil {
			err = s.verifyTarget(ctx, dst, dstPath, size, detail)
		}
	}
	if err != nil {
		return nil, err
	}
	out.BytesTransferred = size
	return out, nil
}

func (s *Service) copySameHost(ctx context.Context, host config.HostConfig, srcPath, dstPath string) error {
	res, err := s.run.Execute(ctx, host, "cp", []string{"--", srcPath, dstPath}, exec.Options{})
	if err != nil {
		return err
	}
	return check("transfer_file", host, "cp", res)
}

func (s *Service) stream(ctx context.Context, src config.HostConfig, srcPath string, dst config.HostConfig, dstPath string, size int64) error {
	if size > MaxStreamSize {
		return errors.NewValidation("source", fmt.Sprintf("larger than %d bytes, too big to stream", MaxStreamSize), srcPath)
	}
	res, err := s.run.Execute(ctx, src, "cat", []string{"--", srcPath}, exec.Options{})
	if err != nil {
		return err
	}
	if err := check("transfer_file", src, "cat", res); err != nil {
		return err
	}
	if int64(len(res.Stdout)) != size {
		return errors.New(errors.ErrExec,
			fmt.Sprintf("%s changed during transfer (%d bytes read, %d expected)", srcPath, len(res.Stdout), size),
			"Retry once the file is no longer being written").
			WithHost(src.Name).WithOp("transfer_file")
	}

	res, err = s.run.Pipeline(ctx, dst, []exec.Command{{Name: "cat", Output: dstPath}},
		exec.Options{Stdin: bytes.NewReader(res.Stdout)})
	if err != nil {
		return err
	}
	if err := check("transfer_file", dst, "cat", res); err != nil {
		return err
	}
	return s.verifyTarget(ctx, dst, dstPath, size, "")
}

// pipe builds the two-shell command. The inner line is escaped for the
// target's shell here; the router escapes it again, as one ssh argument,
// for the source's shell. The exit status is ssh's, so a failing cat is
// only visible in the returned stderr and in the target's size.
func (s *Service) pipe(ctx context.Context, src config.HostConfig, srcPath string, dst config.HostConfig, dstPath string) (string, error) {
	sshArgs, err := RemoteWriteArgs(dst, dstPath)
	if err != nil {
		return "", err
	}
	res, err := s.run.Pipeline(ctx, src, []exec.Command{
		exec.Cmd("cat", "--", srcPath),
		exec.Cmd("ssh", sshArgs...),
	}, exec.Options{})
	if err != nil {
		return "", err
	}
	if err := check("transfer_file", src, "ssh", res); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stderr)), nil
}

// verifyTarget fails unless dstPath on dst holds exactly want bytes.
func (s *Service) verifyTarget(ctx context.Context, dst config.HostConfig, dstPath string, want int64, detail string) error {
	got, err := s.fileSize(ctx, dst, dstPath)
	if err != nil {
		return err
	}
	if got == want {
		return nil
	}
	if detail == "" {
		detail = "The source may have changed during the transfer; retry it"
	}
	return errors.New(errors.ErrExec,
		fmt.Sprintf("Transfer to '%s' is incomplete: %s has %d bytes, expected %d", dst.Name, dstPath, got, want),
		errors.Truncate(detail, 300)).
		WithHost(dst.Name).WithOp("transfer_file")
}

// RemoteWriteArgs returns the ssh arguments that write stdin to path on
// target. The target's address and user are validated again here because
// they are about to be interpolated into a command for another shell.
func RemoteWriteArgs(target config.HostConfig, path string) ([]string, error) {
	addr, err := security.ValidateHost(target.Address)
	if err != nil {
		return nil, err
	}
	dest := addr
	if target.User != "" {
		user, err := security.ValidateUser(target.User)
		if err != nil {
			return nil, err
		}
		dest = user + "@" + addr
	}
	inner := exec.Render([]exec.Command{{Name: "cat", Output: path}}, "")
	return []string{
		"-o", "BatchMode=yes",
		"-p", strconv.Itoa(target.EffectivePort()),
		dest,
		inner,
	}, nil
}

// DiffFiles compares two files. On one host it runs diff -U; across hosts
// both files are read (bounded) and compared byte for byte.
func (s *Service) DiffFiles(ctx context.Context, h1 config.HostConfig, p1 string, h2 config.HostConfig, p2 string, contextLines int) (*DiffResult, error) {
	p1, err := security.ValidatePath(p1)
	if err != nil {
		return nil, err
	}
	p2, err = security.ValidatePath(p2)
	if err != nil {
		return nil, err
	}
	if _, err := security.ValidateContextLines(contextLines); err != nil {
		return nil, err
	}

	out := &DiffResult{Host1: h1.Name, Path1: p1, Host2: h2.Name, Path2: p2}

	if h1.Name == h2.Name {
		res, err := s.run.Execute(ctx, h1, "diff", []string{"-U", strconv.Itoa(contextLines), "--", p1, p2}, exec.Options{})
		if err != nil {
			return nil, err
		}
		switch res.ExitCode {
		case 0:
			out.Identical = true
		case 1:
			out.Diff = string(res.Stdout)
		default:
			return nil, check("diff_files", h1, "diff", res)
		}
		return out, nil
	}

	var a, b []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		a, err = s.readBounded(gctx, h1, p1)
		return err
	})
	g.Go(func() (err error) {
		b, err = s.readBounded(gctx, h2, p2)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.Identical = bytes.Equal(a, b)
	return out, nil
}

func (s *Service) readBounded(ctx context.Context, host config.HostConfig, path string) ([]byte, error) {
	res, err := s.run.Execute(ctx, host, "head", []string{"-c", strconv.FormatInt(MaxCrossHostDiff+1, 10), "--", path}, exec.Options{})
	if err != nil {
		return nil, err
	}
	if err := check("diff_files", host, "head", res); err != nil {
		return nil, err
	}
	if int64(len(res.Stdout)) > MaxCrossHostDiff {
		return nil, errors.NewValidation("path", fmt.Sprintf("larger than %d bytes, too big to compare across hosts", MaxCrossHostDiff), path).
			WithHost(host.Name)
	}
	return res.Stdout, nil
}
