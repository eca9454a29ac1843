package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// Names of the files read by the job supervisor to report the failure of a job
const (
	ErrorFileName     = "_alt_error.txt"
	TracebackFileName = "_alt_traceback.txt"
)

// WriteErrorFiles appends the error message to <dir>/_alt_error.txt
// and the error chain followed by the stack to <dir>/_alt_traceback.txt
func WriteErrorFiles(dir string, err error) error {
	if err == nil {
		return nil
	}
	if e := appendFile(filepath.Join(dir, ErrorFileName), err.Error()+"\n"); e != nil {
		return fmt.Errorf("WriteErrorFiles: %w", e)
	}
	if e := appendFile(filepath.Join(dir, TracebackFileName), Traceback(err)); e != nil {
		return fmt.Errorf("WriteErrorFiles: %w", e)
	}
	return nil
}

// Traceback formats the chain of wrapped errors and the current stack
func Traceback(err error) string {
	var sb strings.Builder
	for i := 0; err != nil; i++ {
		fmt.Fprintf(&sb, "%s%T: %v\n", strings.Repeat("  ", i), err, err)
		err = errors.Unwrap(err)
	}
	sb.Write(debug.Stack())
	return sb.String()
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
