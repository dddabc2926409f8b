package logging

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {

	logger := NewLogger(slog.LevelDebug, nil)

	logger.Info("info test")
	logger.Warn("warn test")
	logger.Debug("debug test")
}

func TestError(t *testing.T) {

	logger := NewLogger(slog.LevelDebug, nil)

	err := errors.New("an error occurred")

	logger.Info("info test")
	logger.Warn("warn test")
	logger.Error(err)
	logger.Debug("debug test")
}

func TestLogFile(t *testing.T) {

	fs := afero.NewMemMapFs()
	f, err := fs.Create("certgen.log")
	assert.Nil(t, err)

	logger := NewLogger(slog.LevelInfo, f)
	logger.Info("written to the log file")
	f.Close()

	contents, err := afero.ReadFile(fs, "certgen.log")
	assert.Nil(t, err)
	assert.Contains(t, string(contents), "written to the log file")
}
