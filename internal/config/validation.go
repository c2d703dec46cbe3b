package config

import (
	"fmt"
	"strings"
	"time"
)

func validate(c *Config) error {
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Quotes.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(b.Mode)) {
	case "paper":
		return nil
	case "http":
	default:
		return fmt.Errorf("broker.mode only supports 'paper' or 'http', got %s", b.Mode)
	}
	if strings.TrimSpace(b.APIURL) == "" {
		return fmt.Errorf("broker.api_url cannot be empty in http mode")
	}
	if strings.TrimSpace(b.APIToken) == "" {
		if strings.TrimSpace(b.Username) == "" || strings.TrimSpace(b.Password) == "" {
			return fmt.Errorf("broker requires api_token or username+password")
		}
	}
	return nil
}

func (q *QuotesConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(q.Source)) {
	case "binance", "static":
		return nil
	default:
		return fmt.Errorf("quotes.source only supports 'binance' or 'static', got %s", q.Source)
	}
}

func (e *EngineConfig) validate() error {
	if e.AccountID <= 0 {
		return fmt.Errorf("engine.account_id must be > 0")
	}
	if e.LockTimeoutMS <= 0 {
		return fmt.Errorf("engine.lock_timeout_ms must be > 0")
	}
	for _, iv := range []struct{ key, val string }{
		{"engine.refresh_interval", e.RefreshInterval},
		{"engine.sizing_interval", e.SizingInterval},
	} {
		if !IsValidInterval(iv.val) {
			return fmt.Errorf("%s must look like 30s, 1m or 1h, got %s", iv.key, iv.val)
		}
	}
	return nil
}

// IsValidInterval checks the digits-then-unit shape (30s, 15m, 1h, 1d).
func IsValidInterval(s string) bool {
	if len(s) < 2 {
		return false
	}
	suf := s[len(s)-1]
	if suf != 's' && suf != 'm' && suf != 'h' && suf != 'd' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.VirtualBalance <= 0 {
		return fmt.Errorf("risk.virtual_balance must be > 0")
	}
	if r.MaxEquityPerInstrumentPct <= 0 || r.MaxEquityPerInstrumentPct > 1 {
		return fmt.Errorf("risk.max_equity_per_instrument_pct must be in (0, 1]")
	}
	if r.AllocationFraction <= 0 || r.AllocationFraction > 1 {
		return fmt.Errorf("risk.allocation_fraction must be in (0, 1]")
	}
	if r.TopRankException <= 0 {
		return fmt.Errorf("risk.top_rank_exception must be > 0")
	}
	return nil
}

// LockTimeout returns the scope lock timeout as a duration.
func (e EngineConfig) LockTimeout() time.Duration {
	return time.Duration(e.LockTimeoutMS) * time.Millisecond
}
