package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger records the narrative of a single analysis run.
// All methods are safe to call on a nil receiver.
type RunLogger struct {
	runID     string
	logFile   *os.File
	logPath   string
	mutex     sync.Mutex
	startTime time.Time
	stages    map[string]time.Time
	zl        zerolog.Logger
}

// NewRunLogger creates a logger that only writes through zerolog
func NewRunLogger(runID string) *RunLogger {
	return &RunLogger{
		runID:     runID,
		startTime: time.Now(),
		stages:    make(map[string]time.Time),
		zl:        log.With().Str("run_id", runID).Logger(),
	}
}

// StartRunLogging creates a logger that also keeps a full transcript, including
// prompts and responses, in dir. An empty dir disables the transcript.
func StartRunLogging(runID, dir string) (*RunLogger, error) {
	logger := NewRunLogger(runID)
	if dir == "" {
		return logger, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := logger.startTime.Format("20060102_150405")
	logger.logPath = filepath.Join(dir, fmt.Sprintf("run_%s_%s.log", runID, timestamp))
	logFile, err := os.Create(logger.logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	logger.logFile = logFile
	logger.writeHeader()

	return logger, nil
}

// RunID returns the identifier of the run
func (r *RunLogger) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Path returns the transcript location, or "" when no transcript is kept
func (r *RunLogger) Path() string {
	if r == nil {
		return ""
	}
	return r.logPath
}

// Log writes a message to the run log
func (r *RunLogger) Log(format string, args ...interface{}) {
	if r == nil {
		return
	}

	message := fmt.Sprintf(format, args...)
	r.zl.Info().Msg(message)
	r.writeLine(message)
}

// Debug writes a message that only reaches the console at debug level
func (r *RunLogger) Debug(format string, args ...interface{}) {
	if r == nil {
		return
	}

	message := fmt.Sprintf(format, args...)
	r.zl.Debug().Msg(message)
	r.writeLine(message)
}

// LogSection writes a section header to the log
func (r *RunLogger) LogSection(title string) {
	if r == nil {
		return
	}

	separator := strings.Repeat("=", 80)
	r.writeLine(separator)
	r.writeLine("= " + title)
	r.writeLine(separator)
	r.zl.Info().Str("section", title).Msg("section")
}

// StageStarted marks the beginning of a pipeline stage
func (r *RunLogger) StageStarted(stage string) {
	if r == nil {
		return
	}

	r.mutex.Lock()
	r.stages[stage] = time.Now()
	r.mutex.Unlock()

	r.zl.Info().Str("stage", stage).Msg("stage started")
	r.writeLine(fmt.Sprintf("STAGE %s started", stage))
}

// StageCompleted marks the successful end of a pipeline stage
func (r *RunLogger) StageCompleted(stage string) {
	if r == nil {
		return
	}

	elapsed := r.stageElapsed(stage)
	r.zl.Info().Str("stage", stage).Dur("elapsed", elapsed).Msg("stage completed")
	r.writeLine(fmt.Sprintf("STAGE %s completed in %v", stage, elapsed.Round(time.Millisecond)))
}

// StageFailed marks a pipeline stage as failed
func (r *RunLogger) StageFailed(stage string, err error) {
	if r == nil {
		return
	}

	elapsed := r.stageElapsed(stage)
	r.zl.Error().Err(err).Str("stage", stage).Dur("elapsed", elapsed).Msg("stage failed")
	r.writeLine(fmt.Sprintf("STAGE %s failed after %v: %v", stage, elapsed.Round(time.Millisecond), err))
}

// LogRequest logs a completion request
func (r *RunLogger) LogRequest(phase, model, prompt string) {
	if r == nil {
		return
	}

	r.zl.Debug().Str("phase", phase).Str("model", model).Int("prompt_chars", len(prompt)).Msg("completion request")
	r.LogSection(fmt.Sprintf("COMPLETION REQUEST - %s", phase))
	r.writeLine(fmt.Sprintf("Model: %s", model))
	r.writeLine(fmt.Sprintf("Prompt length: %d characters", len(prompt)))
	r.writeRaw("--- PROMPT START ---", prompt, "--- PROMPT END ---")
}

// LogResponse logs a completion response
func (r *RunLogger) LogResponse(phase, response string) {
	if r == nil {
		return
	}

	r.zl.Debug().Str("phase", phase).Int("response_chars", len(response)).Msg("completion response")
	r.LogSection(fmt.Sprintf("COMPLETION RESPONSE - %s", phase))
	r.writeLine(fmt.Sprintf("Response length: %d characters", len(response)))
	r.writeRaw("--- RESPONSE START ---", response, "--- RESPONSE END ---")
}

// LogError logs an error
func (r *RunLogger) LogError(context string, err error) {
	if r == nil {
		return
	}

	r.zl.Error().Err(err).Str("context", context).Msg("error")
	r.writeLine(fmt.Sprintf("ERROR in %s: %v", context, err))
}

// Close finalizes the transcript
func (r *RunLogger) Close() {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	total := time.Since(r.startTime)
	r.zl.Debug().Dur("total", total).Msg("run logging completed")

	if r.logFile != nil {
		fmt.Fprintf(r.logFile, "%s Run logging completed. Total duration: %v\n", r.prefix(), total.Round(time.Millisecond))
		r.logFile.Sync()
		r.logFile.Close()
		r.logFile = nil
	}
}

func (r *RunLogger) stageElapsed(stage string) time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	started, ok := r.stages[stage]
	if !ok {
		return 0
	}
	delete(r.stages, stage)
	return time.Since(started)
}

func (r *RunLogger) writeLine(message string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.logFile == nil {
		return
	}
	fmt.Fprintf(r.logFile, "%s %s\n", r.prefix(), message)
}

func (r *RunLogger) writeRaw(open, body, close string) {
	r.writeLine(open)

	r.mutex.Lock()
	if r.logFile != nil {
		r.logFile.WriteString(body + "\n")
	}
	r.mutex.Unlock()

	r.writeLine(close)
}

// prefix renders "[HH:MM:SS.mmm] [+elapsed]"; callers hold the mutex
func (r *RunLogger) prefix() string {
	elapsed := time.Since(r.startTime)
	return fmt.Sprintf("[%s] [+%v]", time.Now().Format("15:04:05.000"), elapsed.Round(time.Millisecond))
}

func (r *RunLogger) writeHeader() {
	header := fmt.Sprintf(`ARCHDRIFT RUN LOG
Run ID: %s
Start Time: %s
Log Format: [HH:MM:SS.mmm] [+duration] message

`, r.runID, r.startTime.Format("2006-01-02 15:04:05"))

	r.logFile.WriteString(header)
	r.logFile.Sync()
}
