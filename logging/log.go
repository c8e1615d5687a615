package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

const DefaultLevel = logrus.InfoLevel

type prefixFormatter struct {
	prefix    string
	formatter logrus.Formatter
}

// Init options for logging.
type Options struct {

	// Prefix for application log entries, e.g. to tell apart the
	// output of several switches logging into the same stream.
	ApplicationLogPrefix string

	// Output for the application log entries, when nil,
	// os.Stderr is used.
	ApplicationLogOutput io.Writer

	// Level of the application log. The zero value is panic level,
	// use ParseLevel or DefaultLevel.
	ApplicationLogLevel logrus.Level

	// When set, log in JSON format is used
	ApplicationLogJSONEnabled bool
}

func (f *prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	b, err := f.formatter.Format(e)
	if err != nil {
		return nil, err
	}

	return append([]byte(f.prefix), b...), nil
}

// ParseLevel parses a logrus level name.
func ParseLevel(s string) (logrus.Level, error) {
	return logrus.ParseLevel(s)
}

// Initializes the application log.
func Init(o Options) {
	var formatter logrus.Formatter = &logrus.TextFormatter{}
	if o.ApplicationLogJSONEnabled {
		formatter = &logrus.JSONFormatter{}
	}

	if o.ApplicationLogPrefix != "" {
		formatter = &prefixFormatter{o.ApplicationLogPrefix, formatter}
	}

	logrus.SetFormatter(formatter)
	logrus.SetLevel(o.ApplicationLogLevel)

	if o.ApplicationLogOutput != nil {
		logrus.SetOutput(o.ApplicationLogOutput)
	}
}
