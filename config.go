package ouroboros

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-courses/internal/config"
	"github.com/i5heu/ouroboros-courses/pkg/courses"
	"github.com/i5heu/ouroboros-courses/pkg/logging"
)

// Config configures the database instance. Only Paths[0] is used at the
// moment.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// MinimumFreeGB is a free-space threshold checked when the badger backend opens.
	MinimumFreeGB int
	// Backend is "badger" (default) or "memory". The memory backend keeps
	// nothing after Close.
	Backend    string
	SyncWrites bool
	// Compress stores entries of at least CompressionThreshold bytes LZMA compressed.
	Compress             bool
	CompressionThreshold int
	// GarbageCollectionInterval between value log GC runs. 0 disables GC.
	GarbageCollectionInterval time.Duration
	// RepairInterval between passes that compact the latest links of all
	// courses and sections. 0 disables the background pass.
	RepairInterval time.Duration
	// Workers used by repair passes. Defaults to three per CPU.
	Workers int
	// Agent is the name of the acting teacher / student.
	Agent string
	// Relations overrides the deletion policies of the course hierarchy.
	Relations map[string]courses.Relation
	// Logger is optional. If nil, a stderr text logger at Info level is used.
	Logger *logrus.Logger
	// Registerer receives the prometheus collectors. If nil, metrics are
	// collected but not registered.
	Registerer prometheus.Registerer
}

// ConfigFromFile converts a loaded configuration file into a Config.
func ConfigFromFile(c config.Config) (Config, error) {
	logger, err := logging.New(c.LogLevel, c.LogFormat)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Paths:                     c.Paths,
		MinimumFreeGB:             c.MinimumFreeGB,
		Backend:                   c.Backend,
		SyncWrites:                c.SyncWrites,
		Compress:                  c.Compression == config.CompressionLZMA,
		CompressionThreshold:      c.CompressionThreshold,
		GarbageCollectionInterval: time.Duration(c.GarbageCollectionInterval) * time.Minute,
		RepairInterval:            time.Duration(c.RepairInterval) * time.Minute,
		Workers:                   c.Workers,
		Agent:                     c.Agent,
		Logger:                    logger,
	}, nil
}
