package mongo

// Logger interface API for log.Logger.
type Logger interface {
	Printf(string, ...any)
}

// LoggerFunc is a bridge between Logger and any third party logger with the
// same signature.
//
// Usage:
//
//	l := NewLogger() // some logger
//	d := &mongo.Dialer{
//	  Logger:      mongo.LoggerFunc(l.Infof),
//	  ErrorLogger: mongo.LoggerFunc(l.Errorf),
//	}
type LoggerFunc func(string, ...any)

func (f LoggerFunc) Printf(msg string, args ...any) { f(msg, args...) }

func logf(l Logger, msg string, args ...any) {
	if l != nil {
		l.Printf(msg, args...)
	}
}
