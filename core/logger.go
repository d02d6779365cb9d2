package core

// Logger is implemented by any structured logger of the app.
// args may carry errors, extra data maps or the subject of the log line.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
