// Package unanswered keeps the append-only log of questions the catalogue
// could not answer, one query per line.
package unanswered

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Recorder is where the pipeline reports questions it could not answer
type Recorder interface {
	Record(query string) error
}

type Log struct {
	mu   sync.Mutex
	path string
	w    io.Writer
}

var _ Recorder = (*Log)(nil)

// Open appends to the file at path, creating it if needed
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open unanswered log: %w", err)
	}
	return &Log{path: path, w: f}, nil
}

// New logs to w, Queries is unavailable
func New(w io.Writer) *Log {
	return &Log{w: w}
}

// Record appends one line. Line breaks inside the query are flattened.
func (l *Log) Record(query string) error {
	line := strings.Join(strings.Fields(query), " ")
	if line == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, line+"\n")
	return err
}

// Queries reads back every logged query in order
func (l *Log) Queries() ([]string, error) {
	if l.path == "" {
		return nil, errors.New("unanswered log has no backing file")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var ret []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			ret = append(ret, line)
		}
	}
	return ret, scanner.Err()
}

func (l *Log) Close() error {
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
