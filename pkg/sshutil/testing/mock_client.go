package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	pathpkg "path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rileyhilliard/fleet/pkg/sshutil"
)

// ErrClosed is returned by every call on a closed MockClient.
var ErrClosed = errors.New("connection closed")

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
	Block    bool // Wait for ctx to end before returning
}

// Call records one command seen by the mock.
type Call struct {
	Cmd   string
	Stdin []byte
}

// MockClient simulates an SSH connection for testing. Commands are matched
// against canned responses first (exact, then regex) and otherwise run
// against a small virtual filesystem.
type MockClient struct {
	mu       sync.Mutex
	host     string
	address  string
	fs       *MockFS
	closed   bool
	pingErr  error
	pings    int
	calls    []Call
	commands map[string]CommandResponse
	order    []string // registration order, so regex matching is deterministic
}

var _ sshutil.SSHClient = (*MockClient)(nil)

// NewMockClient creates a new mock SSH client with an empty filesystem.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		address:  host + ":22",
		fs:       NewMockFS(),
		commands: make(map[string]CommandResponse),
	}
}

// ExecContext runs cmd against the canned responses or the virtual filesystem.
func (m *MockClient) ExecContext(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	var input []byte
	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return -1, err
		}
		input = data
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return -1, ErrClosed
	}
	m.calls = append(m.calls, Call{Cmd: cmd, Stdin: input})
	resp, matched := m.match(cmd)
	m.mu.Unlock()

	if matched && resp.Block {
		<-ctx.Done()
		return -1, ctx.Err()
	}

	if !matched {
		resp = m.parseAndExecute(cmd, input)
	}
	if resp.Error != nil {
		return -1, resp.Error
	}
	if stdout != nil && len(resp.Stdout) > 0 {
		_, _ = stdout.Write(resp.Stdout)
	}
	if stderr != nil && len(resp.Stderr) > 0 {
		_, _ = stderr.Write(resp.Stderr)
	}
	return resp.ExitCode, nil
}

// match must be called with m.mu held.
func (m *MockClient) match(cmd string) (CommandResponse, bool) {
	if resp, ok := m.commands[cmd]; ok {
		return resp, true
	}
	for _, pattern := range m.order {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return m.commands[pattern], true
		}
	}
	return CommandResponse{}, false
}

// Ping reports the configured ping error, or ErrClosed after Close.
func (m *MockClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pings++
	if m.closed {
		return ErrClosed
	}
	return m.pingErr
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern; regexes are tried
// in registration order.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.commands[pattern]; !exists {
		m.order = append(m.order, pattern)
	}
	m.commands[pattern] = resp
}

// SetPingError makes subsequent Ping calls fail with err (nil restores health).
func (m *MockClient) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// Pings returns how many times Ping was called.
func (m *MockClient) Pings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// Calls returns a copy of every command executed so far.
func (m *MockClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastCommand returns the most recent command, or "".
func (m *MockClient) LastCommand() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1].Cmd
}

// GetFS returns the mock filesystem for direct manipulation in tests.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

// parseAndExecute handles the handful of commands the fleet tools issue
// against the virtual filesystem. Unknown commands succeed silently.
func (m *MockClient) parseAndExecute(cmd string, stdin []byte) CommandResponse {
	words := SplitWords(cmd)

	// Drop a leading "cd dir &&" prefix.
	if len(words) >= 3 && words[0] == "cd" && words[2] == "&&" {
		words = words[3:]
	}
	if len(words) == 0 {
		return CommandResponse{}
	}

	args := words[1:]
	switch words[0] {
	case "true":
		return CommandResponse{}
	case "cat":
		if len(args) == 2 && args[0] == ">" {
			_ = m.fs.WriteFile(args[1], stdin)
			return CommandResponse{}
		}
		return m.handleCatRead(operands(args))
	case "head":
		return m.handleHead(args)
	case "stat":
		return m.handleStatSize(args)
	case "mkdir":
		return m.handleMkdir(args)
	case "cp":
		return m.handleCopy(operands(args))
	case "rm":
		for _, p := range operands(args) {
			_ = m.fs.Remove(p)
		}
		return CommandResponse{}
	case "test":
		if len(args) == 2 && args[0] == "-d" && m.fs.IsDir(args[1]) {
			return CommandResponse{}
		}
		if len(args) == 2 && args[0] == "-f" && m.fs.IsFile(args[1]) {
			return CommandResponse{}
		}
		return CommandResponse{ExitCode: 1}
	case "uname":
		return CommandResponse{Stdout: []byte("Linux\n")}
	}
	return CommandResponse{}
}

// operands returns the non-flag arguments, honoring a "--" terminator.
func operands(args []string) []string {
	var out []string
	for i, a := range args {
		if a == "--" {
			return append(out, args[i+1:]...)
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (m *MockClient) handleCatRead(paths []string) CommandResponse {
	if len(paths) == 0 {
		return CommandResponse{Stderr: []byte("cat: missing file operand"), ExitCode: 1}
	}
	var out []byte
	for _, p := range paths {
		content, err := m.fs.ReadFile(p)
		if err != nil {
			return CommandResponse{Stdout: out, Stderr: []byte("cat: " + p + ": No such file or directory"), ExitCode: 1}
		}
		out = append(out, content...)
	}
	return CommandResponse{Stdout: out}
}

// handleCopy processes: cp [--] src dst (files only)
func (m *MockClient) handleCopy(paths []string) CommandResponse {
	if len(paths) != 2 {
		return CommandResponse{Stderr: []byte("cp: missing destination file operand"), ExitCode: 1}
	}
	content, err := m.fs.ReadFile(paths[0])
	if err != nil {
		return CommandResponse{Stderr: []byte(fmt.Sprintf("cp: cannot stat '%s': No such file or directory", paths[0])), ExitCode: 1}
	}
	if err := m.fs.WriteFile(paths[1], content); err != nil {
		return CommandResponse{Stderr: []byte("cp: " + err.Error()), ExitCode: 1}
	}
	return CommandResponse{}
}

// handleHead processes: head -c N [--] path
func (m *MockClient) handleHead(args []string) CommandResponse {
	if len(args) < 3 || args[0] != "-c" {
		return CommandResponse{Stderr: []byte("head: unsupported arguments"), ExitCode: 1}
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return CommandResponse{Stderr: []byte("head: invalid number of bytes"), ExitCode: 1}
	}
	paths := operands(args[2:])
	if len(paths) != 1 {
		return CommandResponse{Stderr: []byte("head: missing operand"), ExitCode: 1}
	}
	content, err := m.fs.ReadFile(paths[0])
	if err != nil {
		return CommandResponse{Stderr: []byte(fmt.Sprintf("head: cannot open '%s' for reading: No such file or directory", paths[0])), ExitCode: 1}
	}
	if len(content) > n {
		content = content[:n]
	}
	return CommandResponse{Stdout: content}
}

// handleStatSize processes: stat -c %s [--] path
func (m *MockClient) handleStatSize(args []string) CommandResponse {
	if len(args) < 3 || args[0] != "-c" || args[1] != "%s" {
		return CommandResponse{Stderr: []byte("stat: unsupported arguments"), ExitCode: 1}
	}
	paths := operands(args[2:])
	if len(paths) != 1 {
		return CommandResponse{Stderr: []byte("stat: missing operand"), ExitCode: 1}
	}
	content, err := m.fs.ReadFile(paths[0])
	if err != nil {
		return CommandResponse{Stderr: []byte(fmt.Sprintf("stat: cannot statx '%s': No such file or directory", paths[0])), ExitCode: 1}
	}
	return CommandResponse{Stdout: []byte(strconv.Itoa(len(content)) + "\n")}
}

// handleMkdir processes: mkdir [-p] [--] path
func (m *MockClient) handleMkdir(args []string) CommandResponse {
	createParents := len(args) > 0 && args[0] == "-p"
	paths := operands(args)
	if len(paths) != 1 {
		return CommandResponse{Stderr: []byte("mkdir: missing operand"), ExitCode: 1}
	}
	p := paths[0]

	var err error
	if createParents {
		err = m.fs.MkdirAll(p)
	} else {
		if parent := pathpkg.Dir(p); parent != "/" && parent != "." && !m.fs.IsDir(parent) {
			return CommandResponse{
				Stderr:   []byte(fmt.Sprintf("mkdir: cannot create directory '%s': No such file or directory", p)),
				ExitCode: 1,
			}
		}
		err = m.fs.Mkdir(p)
	}
	if err != nil {
		return CommandResponse{Stderr: []byte("mkdir: cannot create directory: " + err.Error()), ExitCode: 1}
	}
	return CommandResponse{}
}

// SplitWords splits a POSIX command line into words, undoing single and
// double quoting and backslash escapes. Unquoted | and && become their own
// words. It covers what the fleet renderers emit, not the full shell grammar.
func SplitWords(line string) []string {
	var words []string
	var cur strings.Builder
	inWord := false
	flush := func() {
		if inWord {
			words = append(words, cur.String())
			cur.Reset()
			inWord = false
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			flush()
		case c == '\'':
			inWord = true
			end := strings.IndexByte(line[i+1:], '\'')
			if end == -1 {
				cur.WriteString(line[i+1:])
				i = len(line)
				break
			}
			cur.WriteString(line[i+1 : i+1+end])
			i += end + 1
		case c == '"':
			inWord = true
			for i++; i < len(line) && line[i] != '"'; i++ {
				if line[i] == '\\' && i+1 < len(line) {
					i++
				}
				cur.WriteByte(line[i])
			}
		case c == '\\' && i+1 < len(line):
			inWord = true
			i++
			cur.WriteByte(line[i])
		case c == '|' && !inWord:
			words = append(words, "|")
		case c == '&' && !inWord && i+1 < len(line) && line[i+1] == '&':
			words = append(words, "&&")
			i++
		default:
			inWord = true
			cur.WriteByte(c)
		}
	}
	flush()
	return words
}
