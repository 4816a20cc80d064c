// Package diag implements the assembler's diagnostic taxonomy: queued vs.
// immediate reporting, a suppress scope for macro dry-runs, and the
// erroronwarning policy, per spec.md §7.
package diag

import (
	"fmt"
	"log"
	"sort"
)

// Severity is the closed taxonomy of spec.md §7.
type Severity int

const (
	Notice Severity = iota
	Warning
	Error
	FatalError
)

func (s Severity) String() string {
	switch s {
	case Notice:
		return "notice"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case FatalError:
		return "fatal error"
	default:
		return "diag"
	}
}

// Entry is one reported diagnostic, attributed to a source position.
type Entry struct {
	Severity Severity
	File     string
	Line     int
	Message  string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s(%d) %s: %s", e.File, e.Line, e.Severity, e.Message)
}

// FatalAbort is returned/panicked-with by the driver loop when a
// FatalError diagnostic is raised: the run cannot continue at all.
type FatalAbort struct{ Entry Entry }

func (f FatalAbort) Error() string { return f.Entry.String() }

// Logger accumulates diagnostics across a single assembler run. Its
// lifecycle is scoped to one run (cleared at entry, per spec.md §5's
// "shared resources... lifecycle tied to a single run").
type Logger struct {
	ErrorOnWarning bool
	Silent         bool

	out *log.Logger

	queue     []Entry // pending entries raised during the current Validate pass
	persisted []Entry // flushed entries from completed passes, plus all immediate ones

	suppressDepth int // >0 while inside a macro dry-run parse
}

// New creates a Logger that writes immediate diagnostics to out via the
// stdlib log package, matching the teacher's debug-log pattern in
// service/debugger_service.go (log.New to a sink chosen by the caller).
func New(out *log.Logger) *Logger {
	return &Logger{out: out}
}

// Suppress disables both printing and queuing for the duration of a macro
// dry-run parse (spec.md §4.5's initializing_macro pass).
func (l *Logger) Suppress()   { l.suppressDepth++ }
func (l *Logger) Unsuppress() { l.suppressDepth-- }
func (l *Logger) suppressed() bool { return l.suppressDepth > 0 }

func (l *Logger) effective(sev Severity) Severity {
	if sev == Warning && l.ErrorOnWarning {
		return Error
	}
	return sev
}

// Queue raises a diagnostic during Validate. Entries are not printed
// immediately because Validate runs repeatedly and earlier-pass errors may
// be transient (spec.md §7).
func (l *Logger) Queue(sev Severity, file string, line int, format string, args ...any) {
	if l.suppressed() {
		return
	}
	sev = l.effective(sev)
	e := Entry{Severity: sev, File: file, Line: line, Message: fmt.Sprintf(format, args...)}
	l.queue = append(l.queue, e)
	if sev == FatalError {
		panic(FatalAbort{Entry: e})
	}
}

// FlushPass moves the current pass's queued entries into the persisted
// list, clearing the queue for the next pass. The driver calls this only
// once the fixed-point loop has converged: entries queued during earlier,
// unconverged passes may be transient (a symbol not yet defined, a size
// not yet settled) and are discarded instead via DiscardQueue, per
// spec.md §7.
func (l *Logger) FlushPass() {
	l.persisted = append(l.persisted, l.queue...)
	l.queue = nil
}

// DiscardQueue drops the current pass's queued entries without
// persisting them, since the fixed-point loop is going to re-validate
// from scratch and any error raised this pass may not recur once
// layout settles.
func (l *Logger) DiscardQueue() {
	l.queue = nil
}

// Immediate raises and prints a diagnostic right away — used from Encode
// and from file-open/.include, per spec.md §7.
func (l *Logger) Immediate(sev Severity, file string, line int, format string, args ...any) {
	if l.suppressed() {
		return
	}
	sev = l.effective(sev)
	e := Entry{Severity: sev, File: file, Line: line, Message: fmt.Sprintf(format, args...)}
	l.persisted = append(l.persisted, e)
	if !l.Silent && l.out != nil {
		l.out.Print(e.String())
	}
	if sev == FatalError {
		panic(FatalAbort{Entry: e})
	}
}

// Errors returns every persisted Error/FatalError diagnostic, sorted by
// file then line; entries at the same position keep the order they were
// raised, matching spec.md §7's "aggregated order: same as source
// visitation" and giving a deterministic order across files.
func (l *Logger) Errors() []Entry {
	return l.filterAtLeast(Error)
}

// HasErrors reports whether any Error/FatalError has been persisted —
// this determines the run's exit code.
func (l *Logger) HasErrors() bool {
	for _, e := range l.persisted {
		if e.Severity >= Error {
			return true
		}
	}
	return false
}

// All returns every persisted diagnostic regardless of severity.
func (l *Logger) All() []Entry {
	out := make([]Entry, len(l.persisted))
	copy(out, l.persisted)
	return out
}

func (l *Logger) filterAtLeast(min Severity) []Entry {
	var out []Entry
	for _, e := range l.persisted {
		if e.Severity >= min {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// Strings renders every persisted diagnostic in spec.md §7's user-visible
// format, `<file>(<line>) <kind>: <message>`.
func (l *Logger) Strings() []string {
	out := make([]string, len(l.persisted))
	for i, e := range l.persisted {
		out[i] = e.String()
	}
	return out
}
