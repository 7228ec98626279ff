package conference

// Severity ranks a Notice for the user interface.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	// SeverityBlocking asks the user to act (retry, continue without media).
	SeverityBlocking
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityBlocking:
		return "blocking"
	default:
		return "info"
	}
}

// Notice is a user-visible, non-fatal event.
type Notice struct {
	Severity Severity
	Message  string
	Err      error
}

type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
