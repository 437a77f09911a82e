// Package logging writes the events of a run into a per-run log directory.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	AllLogsFilename    = "all.log"
	FailedDirname      = "failed"
)

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	errMu   sync.Mutex
	err     error
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			af.errMu.Lock()
			if af.err == nil {
				af.err = err
			}
			af.errMu.Unlock()
		}
	}
}

// Close stops the async writer, waits for queued writes and closes the file.
// It returns the first write error, if any.
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	closeErr := af.file.Close()
	af.errMu.Lock()
	defer af.errMu.Unlock()
	if af.err != nil {
		return af.err
	}
	return closeErr
}

// FileLogger is a sink writing every event as a JSON line to all.log and the
// output of every failed test to failed/<test>.log.
type FileLogger struct {
	baseDir      string
	logDir       string
	failedDir    string
	allLogsFile  string
	runID        string
	mu           sync.Mutex
	asyncWriters map[string]*AsyncFile
	testNames    map[string]string
	failedFiles  map[string]int
}

var _ messages.Sink = (*FileLogger)(nil)

// eventRecord is one line of all.log.
type eventRecord struct {
	Time  time.Time        `json:"time"`
	Type  string           `json:"type"`
	Event messages.Message `json:"event"`
}

// NewFileLogger creates the run directory baseDir/testrun-<runID>.
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(logDir, FailedDirname)
	for _, dir := range []string{baseDir, logDir, failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		failedDir:    failedDir,
		allLogsFile:  filepath.Join(logDir, AllLogsFilename),
		runID:        runID,
		asyncWriters: make(map[string]*AsyncFile),
		testNames:    make(map[string]string),
		failedFiles:  make(map[string]int),
	}, nil
}

func (l *FileLogger) OnMessage(msg messages.Message) (bool, error) {
	line, err := json.Marshal(eventRecord{Time: time.Now(), Type: messages.Name(msg), Event: msg})
	if err != nil {
		return true, fmt.Errorf("encoding %s: %w", messages.Name(msg), err)
	}
	writer, err := l.getAsyncWriter(l.allLogsFile)
	if err != nil {
		return true, err
	}
	if err := writer.Write(append(line, '\n')); err != nil {
		return true, err
	}

	switch m := msg.(type) {
	case *messages.TestStarting:
		l.mu.Lock()
		l.testNames[m.Test] = m.DisplayName
		l.mu.Unlock()
	case *messages.TestFailed:
		return true, l.writeFailedTest(m)
	}
	return true, nil
}

// writeFailedTest writes a readable report of one failed test.
func (l *FileLogger) writeFailedTest(m *messages.TestFailed) error {
	l.mu.Lock()
	name := l.testNames[m.Test]
	if name == "" {
		name = m.Test
	}
	filename := safeFilename(name)
	if n := l.failedFiles[filename]; n > 0 {
		filename = fmt.Sprintf("%s_%d", filename, n)
	}
	l.failedFiles[safeFilename(name)]++
	l.mu.Unlock()

	writer, err := l.getAsyncWriter(filepath.Join(l.failedDir, filename+".log"))
	if err != nil {
		return err
	}

	var content strings.Builder
	fmt.Fprintf(&content, "TEST: %s\n", name)
	fmt.Fprintf(&content, "ID:       %s\n", m.Test)
	fmt.Fprintf(&content, "Cause:    %s\n", m.Cause)
	fmt.Fprintf(&content, "Duration: %s\n", formatDuration(m.ExecutionTime))

	fmt.Fprintf(&content, "\n%s\n", strings.Repeat("-", 80))
	if m.Cause == messages.CauseTimeout {
		fmt.Fprintf(&content, "TIMEOUT ERROR SUMMARY:\n")
		fmt.Fprintf(&content, "======================\n\n")
	} else {
		fmt.Fprintf(&content, "ERROR SUMMARY:\n")
		fmt.Fprintf(&content, "=============\n\n")
	}
	content.WriteString(m.Failure.String())
	for i, trace := range m.Failure.StackTraces {
		if trace == "" {
			continue
		}
		fmt.Fprintf(&content, "\nStack trace (%s):\n%s\n", m.Failure.Types[i], indentText(trace, "  "))
	}

	fmt.Fprintf(&content, "\n%s\n", strings.Repeat("-", 80))
	fmt.Fprintf(&content, "PLAINTEXT OUTPUT:\n")
	fmt.Fprintf(&content, "================\n\n")
	if m.Output != "" {
		fmt.Fprintf(&content, "%s\n", stripansi.Strip(m.Output))
	} else if m.Cause == messages.CauseTimeout {
		fmt.Fprintf(&content, "No output captured before timeout occurred.\n")
	} else {
		fmt.Fprintf(&content, "No output captured.\n")
	}

	return writer.Write([]byte(content.String()))
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

// Close flushes and closes every file. The logger can keep writing after
// Close; new files are opened on demand and truncate the old ones.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	writers := l.asyncWriters
	l.asyncWriters = make(map[string]*AsyncFile)
	l.mu.Unlock()

	var firstErr error
	for _, writer := range writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetRunDir returns the directory of this run
func (l *FileLogger) GetRunDir() string {
	return l.logDir
}

// GetFailedDir returns the directory containing logs for failed tests
func (l *FileLogger) GetFailedDir() string {
	return l.failedDir
}

// GetAllLogsFile returns the path to the all logs file
func (l *FileLogger) GetAllLogsFile() string {
	return l.allLogsFile
}

// GetRunID returns the current runID
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetDirectoryForRunID returns the path for a specific runID
func (l *FileLogger) GetDirectoryForRunID(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("runID cannot be empty")
	}
	if runID == l.runID {
		return l.logDir, nil
	}
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID), nil
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	s = strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_",
		"<", "_", ">", "_", "|", "_", " ", "_", "(", "_", ")", "_", ",", "",
	).Replace(s)
	s = strings.ReplaceAll(s, "...", "")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// indentText adds indentation to each line of text for better readability
func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
