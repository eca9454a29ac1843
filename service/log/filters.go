package log

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ToolFilter is a Filter that remembers the last error reported by a tool
type ToolFilter interface {
	Filter
	// LastError returns the last line recognized as an error (or "")
	LastError() string
}

// CmdLogFilter formats logs of GDAL command line tools
// (gdal_translate, gdalwarp, gdal2tiles.py...)
type CmdLogFilter struct {
	lastError string
}

// Filter implements Filter
func (f *CmdLogFilter) Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool) {
	msg = strings.TrimSuffix(msg, "\n")
	trimmedmsg := strings.TrimSpace(msg)
	switch {
	case trimmedmsg == "":
		return msg, defaultLevel, true
	case strings.Contains(trimmedmsg, "ERROR"):
		f.lastError = trimmedmsg
		return msg, zapcore.ErrorLevel, false
	case strings.HasPrefix(trimmedmsg, "Warning"), strings.HasPrefix(trimmedmsg, "WARN"):
		return msg, zapcore.WarnLevel, false
	case strings.HasPrefix(trimmedmsg, "0...10...20"):
		// gdal progress bar
		return msg, zapcore.DebugLevel, false
	}
	return msg, zapcore.DebugLevel, false
}

// LastError implements ToolFilter
func (f *CmdLogFilter) LastError() string {
	return f.lastError
}

// PythonLogFilter formats logs of python scripts (metadata extractor, catalog ingestion)
type PythonLogFilter struct {
	lastError string
}

// Filter implements Filter
func (f *PythonLogFilter) Filter(msg string, defaultLevel zapcore.Level) (string, zapcore.Level, bool) {
	msg = strings.TrimSuffix(msg, "\n")
	trimmedmsg := strings.TrimSpace(msg)
	switch {
	case strings.HasPrefix(trimmedmsg, "FATAL:"), strings.HasPrefix(trimmedmsg, "ERROR:"),
		strings.HasPrefix(trimmedmsg, "Traceback"), strings.HasSuffix(strings.SplitN(trimmedmsg, ":", 2)[0], "Error"):
		f.lastError = trimmedmsg
		return msg, zapcore.ErrorLevel, false
	case strings.HasPrefix(trimmedmsg, "WARNING:"):
		return msg, zapcore.WarnLevel, false
	}
	return msg, defaultLevel, false
}

// LastError implements ToolFilter
func (f *PythonLogFilter) LastError() string {
	return f.lastError
}
