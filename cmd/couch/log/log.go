// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package log writes the CLI's diagnostic messages. Info goes to the
// output writer, debug and error messages to the error writer.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Logger is the logging interface used by the commands.
type Logger interface {
	SetOut(io.Writer)
	SetErr(io.Writer)
	// SetDebug enables or suppresses debug messages.
	SetDebug(bool)

	Debug(...any)
	Debugf(string, ...any)
	Info(...any)
	Infof(string, ...any)
	Error(...any)
	Errorf(string, ...any)
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelError
)

type logger struct {
	mu    sync.Mutex
	out   io.Writer
	err   io.Writer
	debug bool
}

// New returns a Logger writing everything to os.Stderr, so that messages
// never mix with command output.
func New() Logger {
	return &logger{out: os.Stderr, err: os.Stderr}
}

func (l *logger) SetOut(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *logger) SetErr(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = w
}

func (l *logger) SetDebug(debug bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = debug
}

// emit writes msg as one line, trimmed of surrounding whitespace.
func (l *logger) emit(lvl level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.err
	switch {
	case lvl == levelDebug && !l.debug:
		return
	case lvl == levelInfo:
		w = l.out
	}
	_, _ = io.WriteString(w, strings.TrimSpace(msg)+"\n")
}

func (l *logger) Debug(args ...any) { l.emit(levelDebug, fmt.Sprint(args...)) }
func (l *logger) Info(args ...any)  { l.emit(levelInfo, fmt.Sprint(args...)) }
func (l *logger) Error(args ...any) { l.emit(levelError, fmt.Sprint(args...)) }

func (l *logger) Debugf(format string, args ...any) {
	l.emit(levelDebug, fmt.Sprintf(format, args...))
}

func (l *logger) Infof(format string, args ...any) {
	l.emit(levelInfo, fmt.Sprintf(format, args...))
}

func (l *logger) Errorf(format string, args ...any) {
	l.emit(levelError, fmt.Sprintf(format, args...))
}

// NewNil returns a Logger that discards everything.
func NewNil() Logger {
	return &logger{out: io.Discard, err: io.Discard}
}
