package log

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxLineSize = 64 * 1024

// Filter receives a line of a tool output with its default level. It returns the message to log and its level,
// or true to drop the line.
type Filter interface {
	Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool)
}

// Stream configures how an output of a tool is logged
type Stream struct {
	Level  zapcore.Level
	Filter Filter
	// Strip is applied to the raw line before the filter (e.g. to remove a framing header)
	Strip func(line []byte) []byte
}

func (s Stream) print(ctx context.Context, msg string) {
	level := s.Level
	if s.Filter != nil {
		var drop bool
		if msg, level, drop = s.Filter.Filter(msg, level); drop {
			return
		}
	}
	if ce := Logger(ctx).Check(level, msg); ce != nil {
		ce.Write()
	}
}

// ReadLines logs every line of r until EOF or a read error.
// Lines longer than 64KiB are clipped.
func ReadLines(ctx context.Context, r io.Reader, s Stream) {
	br := bufio.NewReaderSize(r, maxLineSize)
	clipped := false
	for {
		line, err := br.ReadSlice('\n')
		if !clipped && len(line) > 0 {
			if s.Strip != nil {
				line = s.Strip(line)
			}
			msg := string(line)
			if err == bufio.ErrBufferFull {
				msg += " ...[Message clipped]"
			}
			s.print(ctx, msg)
		}
		switch err {
		case nil:
			clipped = false
		case bufio.ErrBufferFull:
			clipped = true
		default:
			return
		}
	}
}

type execOptions struct {
	stdout, stderr Stream
}

// ExecOption is an option that can be passed to Exec()
type ExecOption func(eo *execOptions)

// StdoutLevel sets the level at which stdout is logged (default: Info)
func StdoutLevel(l zapcore.Level) ExecOption {
	return func(eo *execOptions) {
		eo.stdout.Level = l
	}
}

// StderrLevel sets the level at which stderr is logged (default: Warn)
func StderrLevel(l zapcore.Level) ExecOption {
	return func(eo *execOptions) {
		eo.stderr.Level = l
	}
}

// WithFilter filters both outputs of the command
func WithFilter(f Filter) ExecOption {
	return func(eo *execOptions) {
		eo.stdout.Filter = f
		eo.stderr.Filter = f
	}
}

// Exec runs cmd, sending the outputs that are not redirected (cmd.Stdout, cmd.Stderr) to Logger(ctx).
// The command is killed if ctx is cancelled.
func Exec(ctx context.Context, cmd *exec.Cmd, options ...ExecOption) error {
	opts := execOptions{
		stdout: Stream{Level: zapcore.InfoLevel},
		stderr: Stream{Level: zapcore.WarnLevel},
	}
	for _, o := range options {
		o(&opts)
	}
	Logger(ctx).Debug("exec", zap.String("cmd", CmdString(cmd)), zap.String("dir", cmd.Dir))

	type output struct {
		r io.Reader
		s Stream
	}
	var outputs []output
	if cmd.Stdout == nil {
		r, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("get stdout pipe: %w", err)
		}
		outputs = append(outputs, output{r, opts.stdout})
	}
	if cmd.Stderr == nil {
		r, err := cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("get stderr pipe: %w", err)
		}
		outputs = append(outputs, output{r, opts.stderr})
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cmd.start: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		if err := cmd.Process.Kill(); err != nil {
			Logger(ctx).Sugar().Warnf("kill: %v", err)
		}
	})

	// the pipes must be drained before cmd.Wait
	wg := sync.WaitGroup{}
	for _, o := range outputs {
		wg.Add(1)
		go func(o output) {
			defer wg.Done()
			ReadLines(ctx, o.r, o.s)
		}(o)
	}
	wg.Wait()
	err := cmd.Wait()
	if !stop() {
		return ctx.Err()
	}
	return err
}

// CmdString returns the command line of cmd, as it would be typed in a shell
func CmdString(cmd *exec.Cmd) string {
	return strings.Join(cmd.Args, " ")
}
