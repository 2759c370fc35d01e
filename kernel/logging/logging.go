// Package logging configures the process logger. Stdout carries the JSON
// response the scheduler parses, so logs go to a file under the log
// directory, and to stderr as well when verbose.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	FileName   = "hfprovider.log"
	trimPrefix = "github.com/chunga-ict/hfprovider/"
)

type Options struct {
	Level   string
	LogDir  string
	Verbose bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// logFile points the logger back at stderr before closing the file.
type logFile struct {
	f *os.File
}

func (l logFile) Close() error {
	logrus.SetOutput(os.Stderr)
	return l.f.Close()
}

// Init sets the global logger up. The returned closer releases the log file.
func Init(opts Options) (io.Closer, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level [%s]", opts.Level)
		}
		level = parsed
	}
	pfxlog.GlobalInit(level, pfxlog.DefaultOptions().SetTrimPrefix(trimPrefix))

	if opts.LogDir == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create log directory [%s]", opts.LogDir)
	}
	path := filepath.Join(opts.LogDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open log file [%s]", path)
	}

	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	if opts.Verbose {
		logrus.SetOutput(io.MultiWriter(f, os.Stderr))
	} else {
		logrus.SetOutput(f)
	}
	return logFile{f: f}, nil
}
