package files

import (
	"time"

	"github.com/rileyhilliard/fleet/internal/security"
)

// ReadResult is the outcome of ReadFile.
type ReadResult struct {
	Host      string `json:"host"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int64  `json:"size"` // 0 when truncated and the real size is unknown
	Truncated bool   `json:"truncated"`
}

// ListResult is the raw directory listing from ListDirectory.
type ListResult struct {
	Host    string `json:"host"`
	Path    string `json:"path"`
	Hidden  bool   `json:"show_hidden"`
	Listing string `json:"listing"`
}

// TreeResult is a depth-limited tree rendering. Fallback is set when the
// host has no tree(1) and the listing came from find.
type TreeResult struct {
	Host     string `json:"host"`
	Path     string `json:"path"`
	Depth    int    `json:"depth"`
	Tree     string `json:"tree"`
	Fallback bool   `json:"fallback,omitempty"`
}

// CommandResult is the outcome of ExecuteCommand. A non-zero exit code is
// reported, not raised.
type CommandResult struct {
	Host     string        `json:"host"`
	WorkDir  string        `json:"working_dir"`
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration_ns"`
}

// FindOptions narrows FindFiles. Zero values take the defaults.
type FindOptions struct {
	Type     security.FileType
	MaxDepth int
	Limit    int
}

// FindResult lists matching paths. Limited is set when more matches
// existed than Limit allowed.
type FindResult struct {
	Host    string   `json:"host"`
	Path    string   `json:"path"`
	Pattern string   `json:"pattern,omitempty"`
	Matches []string `json:"matches"`
	Limited bool     `json:"limited"`
}

// Transfer methods.
const (
	MethodCopy   = "copy"   // same host, cp
	MethodPipe   = "pipe"   // source host pipes into ssh on the target
	MethodStream = "stream" // content streamed through this process
)

// TransferResult reports a completed transfer.
type TransferResult struct {
	SourceHost       string   `json:"source_host"`
	SourcePath       string   `json:"source_path"`
	TargetHost       string   `json:"target_host"`
	TargetPath       string   `json:"target_path"`
	BytesTransferred int64    `json:"bytes_transferred"`
	Method           string   `json:"method"`
	Warnings         []string `json:"warnings,omitempty"`
}

// DiffResult compares two files. Diff carries a unified diff for same-host
// comparisons only.
type DiffResult struct {
	Host1     string `json:"host1"`
	Path1     string `json:"path1"`
	Host2     string `json:"host2"`
	Path2     string `json:"path2"`
	Identical bool   `json:"identical"`
	Diff      string `json:"diff,omitempty"`
}

// GrepOptions narrows GrepFiles.
type GrepOptions struct {
	IgnoreCase bool
	Recursive  bool
	MaxMatches int
}

// GrepResult lists matching lines as grep prints them (path:line:text).
type GrepResult struct {
	Host    string   `json:"host"`
	Path    string   `json:"path"`
	Pattern string   `json:"pattern"`
	Matches []string `json:"matches"`
}

// TailResult holds the last lines of a log, after filtering.
type TailResult struct {
	Host   string   `json:"host"`
	Path   string   `json:"path"`
	Filter string   `json:"filter,omitempty"`
	Lines  []string `json:"lines"`
}
