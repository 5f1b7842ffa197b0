package session

import "ressuche.dev/internal/models"

// ErrorSignature marks a status message as an error report.
const ErrorSignature = "error:"

// ResultSink receives every newly discovered connection, at most once per
// fingerprint.
type ResultSink interface {
	Emit(conn models.Connection)
}

// StatusSink receives human readable progress messages.
type StatusSink interface {
	Notify(message string)
}

// DoneSignal is set exactly once when a session terminates.
type DoneSignal interface {
	Set()
}

type ResultFunc func(conn models.Connection)

func (f ResultFunc) Emit(conn models.Connection) { f(conn) }

type StatusFunc func(message string)

func (f StatusFunc) Notify(message string) { f(message) }

type DoneFunc func()

func (f DoneFunc) Set() { f() }

// Sinks bundles the outputs of a session. Nil members discard.
type Sinks struct {
	Results ResultSink
	Status  StatusSink
	Done    DoneSignal
}

func (s Sinks) withDefaults() Sinks {
	if s.Results == nil {
		s.Results = ResultFunc(func(models.Connection) {})
	}
	if s.Status == nil {
		s.Status = StatusFunc(func(string) {})
	}
	if s.Done == nil {
		s.Done = DoneFunc(func() {})
	}
	return s
}
