package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// maxOutputLines bounds how much tool output a Command keeps.
const maxOutputLines = 100

// CommandBuilder builds ffmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	logLevel   string
	overwrite  bool
	inputArgs  []string
	input      string
	outputArgs []string
	output     string
}

// NewCommandBuilder creates a new ffmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "warning",
	}
}

// LogLevel sets the ffmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// InputArgs adds arguments placed before -i.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// StreamCopy copies every stream without re-encoding.
func (b *CommandBuilder) StreamCopy() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", "copy")
	return b
}

// OutputArgs adds arguments placed before the output path.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string
	if b.overwrite {
		args = append(args, "-y")
	}
	if b.logLevel != "" {
		args = append(args, "-loglevel", b.logLevel)
	}
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
		Input:  b.input,
		Output: b.output,
	}
}

// Command is a built ffmpeg invocation.
type Command struct {
	Binary string
	Args   []string
	Input  string
	Output string

	mu       sync.Mutex
	lines    []string
	duration time.Duration
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command and waits for it to exit. The combined stdout and
// stderr is kept, last lines only, for OutputLines. A non-zero exit is
// returned as *exec.ExitError.
func (c *Command) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()

	c.mu.Lock()
	c.duration = time.Since(start)
	c.lines = tailLines(&out, maxOutputLines)
	c.mu.Unlock()

	return err
}

// OutputLines returns the last lines the tool printed.
func (c *Command) OutputLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Duration returns how long the last Run took.
func (c *Command) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// ExitCode extracts the process exit status from a Run error, or -1 when
// the process never ran to completion.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func tailLines(r io.Reader, max int) []string {
	lines := make([]string, 0, max)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(lines) >= max {
			lines = lines[1:]
		}
		lines = append(lines, line)
	}
	return lines
}
