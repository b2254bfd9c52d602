package httpclient

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// leveledLogger adapts logrus to retryablehttp.LeveledLogger
type leveledLogger struct {
	log logrus.FieldLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).Info(msg)
}

// retryablehttp logs every attempt at debug level
func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).Warn(msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
