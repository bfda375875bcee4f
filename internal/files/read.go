package files

import (
	"context"
	"strconv"
	"strings"

	"github.com/rileyhilliard/fleet/internal/config"
	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/exec"
	"github.com/rileyhilliard/fleet/internal/security"
)

// ReadFile returns up to maxSize bytes of path. It asks for one byte more
// than the budget so truncation can be detected without a second read; when
// truncated, Size is the file's real size, or 0 if stat could not tell.
func (s *Service) ReadFile(ctx context.Context, host config.HostConfig, path string, maxSize int64) (*ReadResult, error) {
	path, err := security.ValidatePath(path)
	if err != nil {
		return nil, err
	}
	if maxSize == 0 {
		maxSize = DefaultMaxReadSize
	}
	if _, err := security.ValidateSize("max_size", maxSize, MaxReadSize); err != nil {
		return nil, err
	}

	res, err := s.run.Execute(ctx, host, "head", []string{"-c", strconv.FormatInt(maxSize+1, 10), "--", path}, exec.Options{})
	if err != nil {
		return nil, err
	}
	if err := check("read_file", host, "head", res); err != nil {
		return nil, err
	}

	content := res.Stdout
	out := &ReadResult{Host: host.Name, Path: path, Size: int64(len(content))}
	if int64(len(content)) > maxSize {
		out.Truncated = true
		content = content[:maxSize]
		out.Size = 0
		if size, err := s.fileSize(ctx, host, path); err == nil {
			out.Size = size
		} else {
			s.log.Debug("size of %s on %s unavailable: %v", path, host.Name, err)
		}
	}
	out.Content = string(content)
	return out, nil
}

// fileSize stats path on host. An unparsable answer is an error.
func (s *Service) fileSize(ctx context.Context, host config.HostConfig, path string) (int64, error) {
	res, err := s.run.Execute(ctx, host, "stat", []string{"-c", "%s", "--", path}, exec.Options{})
	if err != nil {
		return 0, err
	}
	if err := check("stat", host, "stat", res); err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(string(res.Stdout))
	size, perr := strconv.ParseInt(raw, 10, 64)
	if perr != nil || size < 0 {
		return 0, errors.New(errors.ErrExec,
			"Couldn't determine the size of "+path,
			"stat returned "+strconv.Quote(errors.Truncate(raw, 40))).
			WithHost(host.Name).WithOp("stat")
	}
	return size, nil
}

// ListDirectory returns the raw long listing of path.
func (s *Service) ListDirectory(ctx context.Context, host config.HostConfig, path string, showHidden bool) (*ListResult, error) {
	path, err := security.ValidatePath(path)
	if err != nil {
		return nil, err
	}
	flags := "-l"
	if showHidden {
		flags = "-la"
	}
	res, err := s.run.Execute(ctx, host, "ls", []string{flags, "--", path}, exec.Options{})
	if err != nil {
		return nil, err
	}
	if err := check("list_directory", host, "ls", res); err != nil {
		return nil, err
	}
	return &ListResult{Host: host.Name, Path: path, Hidden: showHidden, Listing: string(res.Stdout)}, nil
}

// TreeDirectory renders path to depth levels. Hosts without tree(1) get a
// sorted find listing instead.
func (s *Service) TreeDirectory(ctx context.Context, host config.HostConfig, path string, depth int) (*TreeResult, error) {
	path, err := security.ValidatePath(path)
	if err != nil {
		return nil, err
	}
	if depth == 0 {
		depth = DefaultTreeDepth
	}
	if _, err := security.ValidateDepth("depth", depth, security.MaxTreeDepth); err != nil {
		return nil, err
	}
	d := strconv.Itoa(depth)

	res, err := s.run.Execute(ctx, host, "tree", []string{"-L", d, "--", path}, exec.Options{})
	if err != nil {
		return nil, err
	}
	if res.ExitCode == 0 {
		return &TreeResult{Host: host.Name, Path: path, Depth: depth, Tree: string(res.Stdout)}, nil
	}
	if _, missing := exec.IsCommandNotFound(string(res.Stderr), res.ExitCode); !missing {
		return nil, commandFailed("tree_directory", host, res)
	}

	s.log.Debug("tree missing on %s, falling back to find", host.Name)
	if err := s.requireDir(ctx, "tree_directory", host, path); err != nil {
		return nil, err
	}
	res, err = s.run.Pipeline(ctx, host, []exec.Command{
		exec.Cmd("find", path, "-maxdepth", d),
		exec.Cmd("sort"),
	}, exec.Options{})
	if err != nil {
		return nil, err
	}
	if err := checkPipeline("tree_directory", host, "find", res); err != nil {
		return nil, err
	}
	return &TreeResult{Host: host.Name, Path: path, Depth: depth, Tree: string(res.Stdout), Fallback: true}, nil
}

// TailLog returns the last lines of a log file, optionally keeping only
// lines that contain filter. The filter is matched here, never on the
// host, so it only needs the in-process pattern policy.
func (s *Service) TailLog(ctx context.Context, host config.HostConfig, path string, lines int, filter string) (*TailResult, error) {
	path, err := security.ValidatePath(path)
	if err != nil {
		return nil, err
	}
	filter, err = security.ValidateFilterPattern(filter)
	if err != nil {
		return nil, err
	}
	if lines == 0 {
		lines = DefaultTailLines
	}
	if _, err := security.ValidateLimit(lines); err != nil {
		return nil, err
	}

	res, err := s.run.Execute(ctx, host, "tail", []string{"-n", strconv.Itoa(lines), "--", path}, exec.Options{})
	if err != nil {
		return nil, err
	}
	if err := check("tail_log", host, "tail", res); err != nil {
		return nil, err
	}

	all := splitLines(res.Stdout)
	out := &TailResult{Host: host.Name, Path: path, Filter: filter, Lines: make([]string, 0, len(all))}
	for _, line := range all {
		if filter == "" || strings.Contains(line, filter) {
			out.Lines = append(out.Lines, line)
		}
	}
	return out, nil
}
