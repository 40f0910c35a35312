package contract

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger replaces the package logger. Call before starting the chaincode.
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}
