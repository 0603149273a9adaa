package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger, err = New("", "")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestTintFormat(t *testing.T) {
	logger, err := New("debug", "tint")
	require.NoError(t, err)
	assert.IsType(t, &TintFormatter{}, logger.Formatter)

	var out bytes.Buffer
	logger.SetOutput(&out)
	logger.SetFormatter(&TintFormatter{NoColor: true, TimeFormat: time.Kitchen})
	logger.WithFields(logrus.Fields{"free_gb": 3, "anchor": "ab12"}).
		WithError(errors.New("disk full")).
		Warn("low disk space")

	line := strings.TrimSpace(out.String())
	assert.Contains(t, line, "WRN low disk space")
	assert.Contains(t, line, "anchor=ab12 error=\"disk full\" free_gb=3")

	out.Reset()
	logger.Debug("tick")
	assert.Contains(t, out.String(), "DBG tick")
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New("loud", "text")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestOr(t *testing.T) {
	custom := logrus.New()
	assert.Same(t, custom, Or(custom))
	assert.NotNil(t, Or(nil))
}
