package config

import "strings"

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9981"
	defaultAppLogPath      = "/data/logs/tradeengine.log"
	defaultDatabasePath    = "/data/db/tradeengine.db"
	defaultBrokerMode      = "paper"
	defaultBrokerTimeout   = 15
	defaultQuoteSource     = "binance"
	defaultAccountID       = 1
	defaultLockTimeoutMS   = 500
	defaultRefreshInterval = "30s"
	defaultSizingInterval  = "1m"
	defaultRulesetsPath    = "configs/rulesets.yaml"
	defaultVirtualBalance  = 10000
	defaultMaxEquityPct    = 0.10
	defaultAllocFraction   = 0.5
	defaultTopRank         = 3
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Quotes.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Rulesets.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("database.path", &d.Path, defaultDatabasePath),
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.mode", &b.Mode, defaultBrokerMode),
		fieldDefault{
			key:   "broker.timeout_seconds",
			need:  func() bool { return b.TimeoutSeconds <= 0 },
			apply: func() { b.TimeoutSeconds = defaultBrokerTimeout },
		},
	)
}

func (q *QuotesConfig) applyDefaults(keys keySet) {
	if q == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("quotes.source", &q.Source, defaultQuoteSource),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.account_id",
			need:  func() bool { return e.AccountID <= 0 },
			apply: func() { e.AccountID = defaultAccountID },
		},
		fieldDefault{
			key:   "engine.lock_timeout_ms",
			need:  func() bool { return e.LockTimeoutMS <= 0 },
			apply: func() { e.LockTimeoutMS = defaultLockTimeoutMS },
		},
		stringFieldDefault("engine.refresh_interval", &e.RefreshInterval, defaultRefreshInterval),
		stringFieldDefault("engine.sizing_interval", &e.SizingInterval, defaultSizingInterval),
	)
}

func (r *RulesetsConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("rulesets.path", &r.Path, defaultRulesetsPath),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.virtual_balance",
			need:  func() bool { return r.VirtualBalance <= 0 },
			apply: func() { r.VirtualBalance = defaultVirtualBalance },
		},
		fieldDefault{
			key:   "risk.max_equity_per_instrument_pct",
			need:  func() bool { return r.MaxEquityPerInstrumentPct <= 0 || r.MaxEquityPerInstrumentPct > 1 },
			apply: func() { r.MaxEquityPerInstrumentPct = defaultMaxEquityPct },
		},
		fieldDefault{
			key:   "risk.allocation_fraction",
			need:  func() bool { return r.AllocationFraction <= 0 || r.AllocationFraction > 1 },
			apply: func() { r.AllocationFraction = defaultAllocFraction },
		},
		fieldDefault{
			key:   "risk.top_rank_exception",
			need:  func() bool { return r.TopRankException <= 0 },
			apply: func() { r.TopRankException = defaultTopRank },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
