package store

import (
	"time"

	"rhat/internal/platform/config"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG PGConfig
	CH CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled         bool
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	LogSQL          bool
	SlowQueryMs     int

	// Guard/boot knobs
	ConnectRetries int           // <=0 -> 20
	PingTimeout    time.Duration // <=0 -> 3s
}

// CHConfig configures clickhouse connectivity
type CHConfig struct {
	Enabled     bool
	URL         string
	ClientName  string
	DialTimeout time.Duration
}

// FromConfig reads SERVICE_PGSQL_* and SERVICE_CLICKHOUSE_* keys
func FromConfig(cfg config.Conf, app string) Config {
	pg := cfg.Prefix("SERVICE_PGSQL_")
	ch := cfg.Prefix("SERVICE_CLICKHOUSE_")

	out := Config{
		AppName: app,
		PG: PGConfig{
			Enabled:         pg.MayBool("ENABLED", false),
			MaxConns:        int32(pg.MayPositiveInt("MAX_CONNS", 4)),
			MinConns:        int32(pg.MayInt("MIN_CONNS", 0)),
			MaxConnLifetime: pg.MayDuration("MAX_CONN_LIFETIME", time.Hour),
			LogSQL:          pg.MayBool("LOG_SQL", false),
			SlowQueryMs:     pg.MayInt("SLOW_QUERY_MS", 500),
			ConnectRetries:  pg.MayPositiveInt("CONNECT_RETRIES", 20),
			PingTimeout:     pg.MayDuration("PING_TIMEOUT", 3*time.Second),
		},
		CH: CHConfig{
			Enabled:     ch.MayBool("ENABLED", false),
			ClientName:  ch.MayString("CLIENT_NAME", app),
			DialTimeout: ch.MayDuration("DIAL_TIMEOUT", 5*time.Second),
		},
	}
	if out.PG.Enabled {
		out.PG.URL = pg.MustString("DBURL")
	}
	if out.CH.Enabled {
		out.CH.URL = ch.MustString("DBURL")
	}
	return out
}
