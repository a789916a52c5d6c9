package module

import (
	"os"
	"path/filepath"
	"time"

	"rhat/internal/platform/config"
	"rhat/internal/services/analyze/domain"
	"rhat/internal/services/analyze/service"
)

// Options holds configuration settings for the analyze module
type Options struct {
	Input         string
	PartitionSize int
	Timeout       time.Duration
	TmpDir        string
	SpillDir      string
	Format        domain.Format
	MetricsAddr   string

	PluginDirs []string

	CacheDir       string
	CacheRetention time.Duration
	FetchTimeout   time.Duration
	MaxBytes       int64

	DBTimeout  time.Duration
	MaxRetries int
}

// FromConfig reads CORE_ANALYZE_*, CORE_PLUGINS_* and CORE_ARCHIVE_* settings
func FromConfig(cfg config.Conf) Options {
	an := cfg.Prefix("CORE_ANALYZE_")
	pl := cfg.Prefix("CORE_PLUGINS_")
	ar := cfg.Prefix("CORE_ARCHIVE_")

	return Options{
		Input:         an.MayPath("INPUT", "input.txt"),
		PartitionSize: an.MayPositiveInt("PARTITION_SIZE", service.DefaultPartitionSize),
		Timeout:       an.MayDuration("TIMEOUT", 0),
		TmpDir:        an.MayPath("TMP_DIR", ""),
		SpillDir:      an.MayPath("SPILL_DIR", ""),
		Format:        domain.Format(an.MayEnum("FORMAT", string(domain.FormatJSON), string(domain.FormatJSON), string(domain.FormatTable))),
		MetricsAddr:   an.MayString("METRICS_ADDR", ""),
		DBTimeout:     an.MayDuration("DB_TIMEOUT", 10*time.Second),
		MaxRetries:    an.MayPositiveInt("DB_RETRIES", 3),

		PluginDirs: pl.MayCSV("DIRS", nil),

		CacheDir:       ar.MayPath("CACHE_DIR", filepath.Join(os.TempDir(), "rhat-archives")),
		CacheRetention: ar.MayDuration("CACHE_RETENTION", 7*24*time.Hour),
		FetchTimeout:   ar.MayDuration("FETCH_TIMEOUT", 10*time.Minute),
		MaxBytes:       int64(ar.MayInt("MAX_BYTES", 0)),
	}
}

// RunOptions are the runner knobs of o
func (o Options) RunOptions() service.Options {
	return service.Options{
		PartitionSize: o.PartitionSize,
		Timeout:       o.Timeout,
		TmpDir:        o.TmpDir,
		SpillDir:      o.SpillDir,
	}
}
