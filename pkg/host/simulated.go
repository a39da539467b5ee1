package host

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Simulated is an in-memory Host. Every command succeeds unless a failure
// was registered for it, and files live in a map.
type Simulated struct {
	mu        sync.Mutex
	name      string
	commands  []string
	failures  map[string]string
	responses map[string]string
	files     map[string]simFile
}

type simFile struct {
	data []byte
	mode os.FileMode
}

var _ Host = (*Simulated)(nil)

// NewSimulated creates an empty simulated host.
func NewSimulated(name string) *Simulated {
	return &Simulated{
		name:      name,
		failures:  make(map[string]string),
		responses: make(map[string]string),
		files:     make(map[string]simFile),
	}
}

// FailOn makes every command whose command line starts with prefix exit 1
// with stderr as its error output.
func (s *Simulated) FailOn(prefix, stderr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = stderr
}

// Respond sets the stdout returned for an exact command line.
func (s *Simulated) Respond(commandLine, stdout string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[commandLine] = stdout
}

// Commands returns every command line run so far, in order.
func (s *Simulated) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Ran reports whether any executed command line starts with prefix.
func (s *Simulated) Ran(prefix string) bool {
	for _, c := range s.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// Name returns the simulated host name.
func (s *Simulated) Name() string {
	return s.name
}

// Run records the command and returns the configured outcome.
func (s *Simulated) Run(_ context.Context, name string, args ...string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := CommandLine(name, args...)
	s.commands = append(s.commands, line)

	res := Result{Command: line, Duration: time.Millisecond}

	// Longest matching prefix wins so specific failures override broad ones.
	prefixes := make([]string, 0, len(s.failures))
	for p := range s.failures {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			res.ExitCode = 1
			res.Stderr = s.failures[p]
			return res, nil
		}
	}

	res.Stdout = s.responses[line]
	return res, nil
}

// ReadFile returns a file written earlier.
func (s *Simulated) ReadFile(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return append([]byte(nil), f.data...), nil
}

// WriteFile stores data in memory.
func (s *Simulated) WriteFile(_ context.Context, path string, data []byte, mode os.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = simFile{data: append([]byte(nil), data...), mode: mode}
	return nil
}

// Stat reports files written earlier.
func (s *Simulated) Stat(_ context.Context, path string) (FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return FileInfo{Path: path}, nil
	}
	return FileInfo{Path: path, Exists: true, Mode: f.mode, Owner: "root", Group: "root"}, nil
}

// Close is a no-op.
func (s *Simulated) Close() error {
	return nil
}
