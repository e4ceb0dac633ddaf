package runner

import (
	"time"

	"github.com/rs/zerolog"
)

// Reporter receives status for every command and every provisioning phase.
type Reporter interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string, err error)
	// Critical is for failures that leave the disk in an unknown state. It never exits.
	Critical(msg string, err error)
	Step(description string) Step
}

// Step is the scoped notifier returned by Reporter.Step.
type Step interface {
	Success()
	Failure(err error)
}

// LogReporter reports through zerolog.
type LogReporter struct {
	Logger zerolog.Logger
}

func NewLogReporter(l zerolog.Logger) *LogReporter {
	return &LogReporter{Logger: l}
}

func (r *LogReporter) Debug(msg string) { r.Logger.Debug().Msg(msg) }
func (r *LogReporter) Info(msg string)  { r.Logger.Info().Msg(msg) }
func (r *LogReporter) Warn(msg string)  { r.Logger.Warn().Msg(msg) }

func (r *LogReporter) Error(msg string, err error) {
	r.Logger.Err(err).Msg(msg)
}

func (r *LogReporter) Critical(msg string, err error) {
	r.Logger.WithLevel(zerolog.FatalLevel).Err(err).Msg(msg)
}

func (r *LogReporter) Step(description string) Step {
	r.Logger.Info().Msgf("[EXECUTING] %s", description)
	return &logStep{l: r.Logger, description: description, start: time.Now()}
}

type logStep struct {
	l           zerolog.Logger
	description string
	start       time.Time
}

func (s *logStep) Success() {
	s.l.Info().Dur("took", time.Since(s.start)).Msgf("[COMPLETED] %s", s.description)
}

func (s *logStep) Failure(err error) {
	s.l.Error().Err(err).Dur("took", time.Since(s.start)).Msgf("[FAILED] %s", s.description)
}

// Discard is a Reporter that drops everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Debug(string)           {}
func (discard) Info(string)            {}
func (discard) Warn(string)            {}
func (discard) Error(string, error)    {}
func (discard) Critical(string, error) {}
func (discard) Step(string) Step       { return discard{} }
func (discard) Success()               {}
func (discard) Failure(error)          {}
