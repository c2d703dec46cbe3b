package config

import "strings"

// Config is the engine's main configuration carrier.
type Config struct {
	App      AppConfig      `toml:"app"`
	Database DatabaseConfig `toml:"database"`
	Broker   BrokerConfig   `toml:"broker"`
	Quotes   QuotesConfig   `toml:"quotes"`
	Engine   EngineConfig   `toml:"engine"`
	Rulesets RulesetsConfig `toml:"rulesets"`
	Notify   NotifyConfig   `toml:"notify"`
	Risk     RiskConfig     `toml:"risk"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// BrokerConfig selects the order gateway. "paper" keeps everything
// in-process; "http" talks to a remote execution engine.
type BrokerConfig struct {
	Mode               string `toml:"mode"` // "paper" | "http"
	APIURL             string `toml:"api_url"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	APIToken           string `toml:"api_token"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	AtomicReplace      bool   `toml:"atomic_replace"`
}

type QuotesConfig struct {
	Source string `toml:"source"` // "binance" | "static"
}

// EngineConfig tunes the lifecycle passes.
type EngineConfig struct {
	AccountID       int64  `toml:"account_id"`
	LockTimeoutMS   int    `toml:"lock_timeout_ms"`
	RefreshInterval string `toml:"refresh_interval"`
	SizingInterval  string `toml:"sizing_interval"`
}

type RulesetsConfig struct {
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// RiskConfig sets the sizing fallbacks used when an expert carries no
// persisted settings row.
type RiskConfig struct {
	VirtualBalance            float64 `toml:"virtual_balance"`
	MaxEquityPerInstrumentPct float64 `toml:"max_equity_per_instrument_pct"` // fraction 0~1
	AllocationFraction        float64 `toml:"allocation_fraction"`           // fraction 0~1
	TopRankException          int     `toml:"top_rank_exception"`
}

// keySet tracks the field paths explicitly set in the config file.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for one field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
