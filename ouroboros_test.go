package ouroboros

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-courses/internal/config"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func startDB(t *testing.T, conf Config) *OuroborosDB {
	t.Helper()
	conf.Logger = quietLogger()
	db, err := New(conf)
	require.NoError(t, err)
	require.NoError(t, db.Start(context.Background()))
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "badger backend needs a path")

	_, err = New(Config{Backend: "postgres", Paths: []string{t.TempDir()}})
	assert.Error(t, err)

	_, err = New(Config{Backend: config.BackendMemory})
	assert.NoError(t, err)
}

func TestNotStartedAndClosed(t *testing.T) {
	db, err := New(Config{Backend: config.BackendMemory, Logger: quietLogger()})
	require.NoError(t, err)

	_, err = db.Courses()
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, db.GarbageCollection(), ErrNotStarted)
	_, err = db.Repair(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, db.Start(context.Background()))
	require.NoError(t, db.Start(context.Background()), "second start is a no-op")

	require.NoError(t, db.Close(context.Background()))
	require.NoError(t, db.Close(context.Background()), "second close is a no-op")

	_, err = db.Courses()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.Repair(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCoursesSurviveRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	conf := Config{Paths: []string{dir}, Agent: "alice", Compress: true, CompressionThreshold: 1, Logger: quietLogger()}

	db, err := New(conf)
	require.NoError(t, err)
	require.NoError(t, db.Start(ctx))

	c, err := db.Courses()
	require.NoError(t, err)
	ca, err := c.CreateCourse(ctx, "Algebra", 100)
	require.NoError(t, err)
	sa, err := c.CreateSection(ctx, "Intro", ca, 101)
	require.NoError(t, err)
	k, err := c.CreateContent(ctx, "video1", "http://x", "intro video", 102, sa)
	require.NoError(t, err)
	require.NoError(t, db.GarbageCollection())
	require.NoError(t, db.Close(ctx))

	db, err = New(conf)
	require.NoError(t, err)
	require.NoError(t, db.Start(ctx))
	t.Cleanup(func() { _ = db.Close(ctx) })

	c, err = db.Courses()
	require.NoError(t, err)

	v, ok, err := c.GetLatestCourse(ctx, ca)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Algebra", v.Entry.Title)

	mine, err := c.GetMyCourses(ctx)
	require.NoError(t, err)
	assert.Contains(t, mine, ca)

	contents, err := c.GetContents(ctx, sa)
	require.NoError(t, err)
	assert.Contains(t, contents, k)
}

func TestMetricsAreRegistered(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	db := startDB(t, Config{Backend: config.BackendMemory, Registerer: reg})

	c, err := db.Courses()
	require.NoError(t, err)
	_, err = c.CreateCourse(ctx, "Algebra", 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(db.Metrics().EngineOps.WithLabelValues("course_anchor->course", "create", "ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBackgroundGarbageCollectionStops(t *testing.T) {
	db := startDB(t, Config{Paths: []string{t.TempDir()}, GarbageCollectionInterval: 10 * time.Millisecond})

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.Close(ctx))
}

func TestRepair(t *testing.T) {
	ctx := context.Background()
	db := startDB(t, Config{Backend: config.BackendMemory, Workers: 2, RepairInterval: 10 * time.Millisecond})
	c, err := db.Courses()
	require.NoError(t, err)

	course, err := c.CreateCourse(ctx, "Algebra", 1)
	require.NoError(t, err)
	_, err = c.CreateSection(ctx, "Intro", course, 2)
	require.NoError(t, err)

	report, err := db.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Courses)
	assert.Equal(t, 1, report.Sections)
	assert.Zero(t, report.Removed)

	time.Sleep(50 * time.Millisecond)
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, db.Close(closeCtx))
}

func TestRunStopsOnCancel(t *testing.T) {
	db, err := New(Config{Backend: config.BackendMemory, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- db.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := db.Courses()
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConfigFromFile(t *testing.T) {
	c := config.Default()
	c.Compression = config.CompressionLZMA
	c.GarbageCollectionInterval = 3
	c.RepairInterval = 60
	c.Workers = 2
	c.Agent = "bob"

	conf, err := ConfigFromFile(c)
	require.NoError(t, err)
	assert.True(t, conf.Compress)
	assert.Equal(t, 3*time.Minute, conf.GarbageCollectionInterval)
	assert.Equal(t, time.Hour, conf.RepairInterval)
	assert.Equal(t, 2, conf.Workers)
	assert.Equal(t, "bob", conf.Agent)
	assert.NotNil(t, conf.Logger)

	c.LogLevel = "loud"
	_, err = ConfigFromFile(c)
	assert.Error(t, err)
}
