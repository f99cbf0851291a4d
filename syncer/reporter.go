package syncer

import (
	"log/slog"
)

// NoticeKind classifies a non-fatal failure surfaced to the user.
type NoticeKind int

const (
	// SelectionUnavailable: the identity has no organization, or the
	// organization has no project yet.
	SelectionUnavailable NoticeKind = iota + 1
	// FetchFailure: a read failed; previously loaded data stays visible.
	FetchFailure
	// MutationFailure: a write failed and the cache was reverted.
	MutationFailure
)

func (k NoticeKind) String() string {
	switch k {
	case SelectionUnavailable:
		return "selection_unavailable"
	case FetchFailure:
		return "fetch_failure"
	case MutationFailure:
		return "mutation_failure"
	default:
		return "unknown"
	}
}

// Notice is one user-facing failure report.
type Notice struct {
	Kind      NoticeKind
	Operation string
	Err       error
}

// Reporter receives notices. Implementations must not block.
type Reporter interface {
	Report(Notice)
}

// ReporterFunc adapts a func to Reporter.
type ReporterFunc func(Notice)

func (f ReporterFunc) Report(n Notice) { f(n) }

// LogReporter writes notices to a logger at warn level.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Report(n Notice) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("sync notice", "kind", n.Kind.String(), "operation", n.Operation, "error", n.Err)
}
