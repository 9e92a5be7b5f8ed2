// Package log configures the process logger. The terminal belongs to the TUI, so logs only
// ever go to a file
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/njyeung/avsync/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Setup points the standard logger at dir/avsync-<date>.log when log.write is set and
// discards everything otherwise. It returns the path of the log file, empty when disabled
func Setup(fs afero.Fs, dir string) (string, error) {
	l := logrus.StandardLogger()
	if !viper.GetBool(config.LogWrite) {
		l.SetOutput(io.Discard)
		return "", nil
	}

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.log", config.Name, time.Now().Format("2006-01-02")))
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}
	l.SetOutput(f)

	if viper.GetBool(config.LogJSON) {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(viper.GetString(config.LogLevel))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return path, nil
}

// Dir returns the log directory under the config directory
func Dir(configDir string) string {
	return filepath.Join(configDir, "logs")
}

// Logger returns the configured logger
func Logger() logrus.FieldLogger {
	return logrus.StandardLogger()
}
