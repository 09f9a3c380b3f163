package core

// Logger is the app-wide structured logger.
// args may hold errors, extra maps and at most one Person (the authenticated caller).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the caller a log entry relates to.
type Person struct {
	ID       string
	Username string
	Email    string
}
