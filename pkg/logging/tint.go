package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/lmittmann/tint"
	"github.com/sirupsen/logrus"
)

// TintFormatter renders logrus entries with the tint console handler:
// colored short levels followed by sorted key=value fields.
type TintFormatter struct {
	NoColor    bool
	TimeFormat string
}

func (f *TintFormatter) Format(e *logrus.Entry) ([]byte, error) {
	timeFormat := f.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	var buf bytes.Buffer
	// logrus already filtered by level
	h := tint.NewHandler(&buf, &tint.Options{
		Level:      slog.LevelDebug - 4,
		TimeFormat: timeFormat,
		NoColor:    f.NoColor,
	})

	r := slog.NewRecord(e.Time, slogLevel(e.Level), e.Message, 0)
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.AddAttrs(slog.Any(k, e.Data[k]))
	}

	if err := h.Handle(context.Background(), r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func slogLevel(l logrus.Level) slog.Level {
	switch l {
	case logrus.TraceLevel:
		return slog.LevelDebug - 4
	case logrus.DebugLevel:
		return slog.LevelDebug
	case logrus.InfoLevel:
		return slog.LevelInfo
	case logrus.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
