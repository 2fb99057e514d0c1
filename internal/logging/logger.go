package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is usable before Bootstrap runs so
// packages and tests never see a nil logger.
var Log = logrus.New()

// Bootstrap configures Log for the running binary.
func Bootstrap(level string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log = &logrus.Logger{
		Out: out,
		Formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		},
		Hooks:    make(logrus.LevelHooks),
		Level:    lvl,
		ExitFunc: os.Exit,
	}
	Log.SetReportCaller(lvl >= logrus.DebugLevel)
}

// Discard silences Log; tests call it to keep output readable.
func Discard() {
	Log = logrus.New()
	Log.SetOutput(io.Discard)
}
