package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	zerologLevels = map[LogLevel]zerolog.Level{
		DEBUG: zerolog.DebugLevel,
		INFO:  zerolog.InfoLevel,
		WARN:  zerolog.WarnLevel,
		ERROR: zerolog.ErrorLevel,
		FATAL: zerolog.FatalLevel,
	}

	currentLevel = INFO
	console      io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	sink         *rotatingFile
	base         zerolog.Logger
	mu           sync.RWMutex
)

func init() {
	rebuild()
}

// rebuild must be called with mu held (or during init).
func rebuild() {
	var w io.Writer = console
	if sink != nil {
		w = zerolog.MultiLevelWriter(console, sink)
	}
	base = zerolog.New(w).Level(zerologLevels[currentLevel]).With().Timestamp().Logger()
}

func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	rebuild()
}

func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetOutput replaces the console writer. Tests and the chat REPL use it to keep
// log lines away from the transcript.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	console = w
	rebuild()
}

func EnableFileLogging(filePath string) error {
	return EnableFileLoggingWithRotation(filePath, 20, 3)
}

func EnableFileLoggingWithRotation(filePath string, maxSizeMB, maxAgeDays int) error {
	mu.Lock()
	defer mu.Unlock()

	if maxSizeMB <= 0 {
		maxSizeMB = 20
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 3
	}

	f, err := openRotatingFile(filePath, int64(maxSizeMB)*1024*1024, maxAgeDays)
	if err != nil {
		return err
	}
	if sink != nil {
		_ = sink.Close()
	}
	sink = f
	rebuild()
	log.Println("File logging enabled:", filePath)
	return nil
}

func DisableFileLogging() {
	mu.Lock()
	defer mu.Unlock()

	if sink != nil {
		_ = sink.Close()
		sink = nil
		rebuild()
	}
}

func logMessage(level LogLevel, component string, message string, fields map[string]interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()

	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.Debug()
	case INFO:
		ev = l.Info()
	case WARN:
		ev = l.Warn()
	case ERROR:
		ev = l.Error()
	default:
		// WithLevel keeps zerolog from exiting; FATAL exits below after the write.
		ev = l.WithLevel(zerolog.FatalLevel)
	}
	if ev == nil {
		return
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)

	if level == FATAL {
		os.Exit(1)
	}
}

type rotatingFile struct {
	mu           sync.Mutex
	file         *os.File
	filePath     string
	maxSizeBytes int64
	maxAgeDays   int
}

func openRotatingFile(filePath string, maxSizeBytes int64, maxAgeDays int) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	rf := &rotatingFile{
		file:         file,
		filePath:     filePath,
		maxSizeBytes: maxSizeBytes,
		maxAgeDays:   maxAgeDays,
	}
	if err := rf.cleanupOldLogFiles(); err != nil {
		log.Println("Failed to clean up old log files:", err)
	}
	return rf, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return len(p), nil
	}
	if r.maxSizeBytes > 0 {
		if err := r.rotateIfNeeded(int64(len(p))); err != nil {
			return 0, err
		}
	}
	return r.file.Write(p)
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *rotatingFile) rotateIfNeeded(nextWrite int64) error {
	info, err := r.file.Stat()
	if err != nil {
		return err
	}
	if info.Size()+nextWrite <= r.maxSizeBytes {
		return nil
	}
	if err := r.file.Close(); err != nil {
		return err
	}

	backupPath := fmt.Sprintf("%s.%s", r.filePath, time.Now().UTC().Format("20060102-150405"))
	if err := os.Rename(r.filePath, backupPath); err != nil {
		return err
	}
	file, err := os.OpenFile(r.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	r.file = file
	return r.cleanupOldLogFiles()
}

func (r *rotatingFile) cleanupOldLogFiles() error {
	if r.maxAgeDays <= 0 || r.filePath == "" {
		return nil
	}

	dir := filepath.Dir(r.filePath)
	prefix := filepath.Base(r.filePath) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -r.maxAgeDays)
	for _, entry := range entries {
		// Only rotated files like khwaaish.log.20260213-120000
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}

func Debug(message string) {
	logMessage(DEBUG, "", message, nil)
}

func DebugC(component string, message string) {
	logMessage(DEBUG, component, message, nil)
}

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func Info(message string) {
	logMessage(INFO, "", message, nil)
}

func InfoC(component string, message string) {
	logMessage(INFO, component, message, nil)
}

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func Warn(message string) {
	logMessage(WARN, "", message, nil)
}

func WarnC(component string, message string) {
	logMessage(WARN, component, message, nil)
}

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func Error(message string) {
	logMessage(ERROR, "", message, nil)
}

func ErrorC(component string, message string) {
	logMessage(ERROR, component, message, nil)
}

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}

func FatalCF(component string, message string, fields map[string]interface{}) {
	logMessage(FATAL, component, message, fields)
}
