// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package log is the node-wide leveled logger: colorized terminal
// output when stderr is a tty, plain key=value pairs otherwise, and an
// optional call site for Trace/Debug lines.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is the logger's verbosity threshold.
type Level int

const (
	LvlError Level = iota
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Level) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN "
	case LvlInfo:
		return "INFO "
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

var levelColor = map[Level]*color.Color{
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgMagenta),
}

var (
	mu       sync.Mutex
	out      io.Writer = colorable.NewColorableStderr()
	colorful           = isatty.IsTerminal(os.Stderr.Fd())
	minLevel int32     = int32(LvlInfo)
)

// SetLevel sets the process-wide minimum level that gets printed.
func SetLevel(l Level) { atomic.StoreInt32(&minLevel, int32(l)) }

// SetOutput redirects log output, used by tests and by daemonized
// nodes that want a log file instead of stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	colorful = false
}

func enabled(l Level) bool { return int32(l) <= atomic.LoadInt32(&minLevel) }

func ctxString(ctx []interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(&b, " %v=%v", ctx[i], ctx[i+1])
	}
	if len(ctx)%2 == 1 {
		fmt.Fprintf(&b, " %v=MISSING", ctx[len(ctx)-1])
	}
	return b.String()
}

func write(l Level, msg string, ctx []interface{}) {
	if !enabled(l) {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000")
	line := fmt.Sprintf("%s [%s] %s%s", ts, l, msg, ctxString(ctx))
	if l >= LvlDebug {
		line += fmt.Sprintf(" caller=%v", stack.Caller(2))
	}
	if colorful {
		if c, ok := levelColor[l]; ok {
			line = c.Sprint(line)
		}
	}
	fmt.Fprintln(out, line)
}

func Error(msg string, ctx ...interface{}) { write(LvlError, msg, ctx) }
func Warn(msg string, ctx ...interface{})  { write(LvlWarn, msg, ctx) }
func Info(msg string, ctx ...interface{})  { write(LvlInfo, msg, ctx) }
func Debug(msg string, ctx ...interface{}) { write(LvlDebug, msg, ctx) }
func Trace(msg string, ctx ...interface{}) { write(LvlTrace, msg, ctx) }
