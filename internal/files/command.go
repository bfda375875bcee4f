package files

import (
	"context"
	"strconv"
	"time"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/exec"
	"github.com/rileyhilliard/fleet/internal/security"
)

// ExecuteCommand runs an allow-listed command line in workDir. The raw line
// is split on whitespace and each argument is escaped on its own, so quotes
// in raw are passed through literally. timeout 0 uses the service default.
func (s *Service) ExecuteCommand(ctx context.Context, host config.HostConfig, workDir, raw string, timeout time.Duration) (*CommandResult, error) {
	workDir, err := security.ValidateWorkingDir(workDir)
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = s.timeout
	}
	if _, err := security.ValidateTimeout(timeout); err != nil {
		return nil, err
	}
	cmd, err := security.ParseSafeCommand(raw, s.allowAny)
	if err != nil {
		return nil, err
	}

	res, err := s.run.Execute(ctx, host, cmd.Name, cmd.Args, exec.Options{WorkDir: workDir, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	if err := exec.MissingCommandError(host.Name, cmd.Name, res); err != nil {
		return nil, err
	}
	return &CommandResult{
		Host:     host.Name,
		WorkDir:  workDir,
		Command:  cmd.String(),
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}, nil
}

// FindFiles searches under path, which must be a directory. pattern is a
// find -name glob and may be empty. The result cap is applied on the host
// with head.
func (s *Service) FindFiles(ctx context.Context, host config.HostConfig, path, pattern string, opts FindOptions) (*FindResult, error) {
	path, err := security.ValidatePath(path)
	if err != nil {
		return nil, err
	}
	if pattern != "" {
		if _, err := security.ValidateArg(pattern, 200); err != nil {
			return nil, err
		}
	}
	// FileType is a string underneath; anything built by conversion is
	// re-checked here before it reaches a command line.
	if !opts.Type.Valid() {
		return nil, errors.NewValidation("type", "must be one of file, dir, link", string(opts.Type))
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultFindDepth
	}
	if _, err := security.ValidateDepth("max_depth", opts.MaxDepth, security.MaxFindDepth); err != nil {
		return nil, err
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultFindLimit
	}
	if _, err := security.ValidateLimit(opts.Limit); err != nil {
		return nil, err
	}

	args := []string{path, "-maxdepth", strconv.Itoa(opts.MaxDepth)}
	if opts.Type != security.FileTypeAny {
		args = append(args, "-type", string(opts.Type))
	}
	if pattern != "" {
		args = append(args, "-name", pattern)
	}

	if err := s.requireDir(ctx, "find_files", host, path); err != nil {
		return nil, err
	}
	res, err := s.run.Pipeline(ctx, host, []exec.Command{
		exec.Cmd("find", args...),
		exec.Cmd("head", "-n", strconv.Itoa(opts.Limit+1)),
	}, exec.Options{})
	if err != nil {
		return nil, err
	}
	if err := checkPipeline("find_files", host, "find", res); err != nil {
		return nil, err
	}

	matches := splitLines(res.Stdout)
	out := &FindResult{Host: host.Name, Path: path, Pattern: pattern}
	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
		out.Limited = true
	}
	if matches == nil {
		matches = []string{}
	}
	out.Matches = matches
	return out, nil
}

// GrepFiles runs grep on the host. The pattern is interpolated into a
// remote command line, so it gets the strict shell-sink policy. Exit 1 (no
// match) is an empty result, not an error.
func (s *Service) GrepFiles(ctx context.Context, host config.HostConfig, path, pattern string, opts GrepOptions) (*GrepResult, error) {
	path, err := security.ValidatePath(path)
	if err != nil {
		return nil, err
	}
	pattern, err = security.ValidateShellPattern(pattern)
	if err != nil {
		return nil, err
	}
	if opts.MaxMatches == 0 {
		opts.MaxMatches = DefaultGrepMatches
	}
	if _, err := security.ValidateLimit(opts.MaxMatches); err != nil {
		return nil, err
	}

	args := []string{"-n", "-I", "-m", strconv.Itoa(opts.MaxMatches)}
	if opts.IgnoreCase {
		args = append(args, "-i")
	}
	if opts.Recursive {
		args = append(args, "-r")
	}
	args = append(args, "-e", pattern, "--", path)

	res, err := s.run.Execute(ctx, host, "grep", args, exec.Options{})
	if err != nil {
		return nil, err
	}
	out := &GrepResult{Host: host.Name, Path: path, Pattern: pattern, Matches: []string{}}
	switch res.ExitCode {
	case 0:
		if m := splitLines(res.Stdout); m != nil {
			out.Matches = m
		}
	case 1:
	default:
		return nil, check("grep_files", host, "grep", res)
	}
	return out, nil
}
