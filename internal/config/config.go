package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that parsed but is missing required
// fields or carries out-of-range values. Callers keep the previous valid
// configuration when they see it.
var ErrInvalid = errors.New("invalid configuration")

// Settings are process-level knobs resolved from the environment, kept
// separate from the hot-reloadable portfolio file.
type Settings struct {
	ConfigPath string `envconfig:"CONFIG_PATH" default:"portfolio.yaml"`
	StatePath  string `envconfig:"STATE_PATH" default:"portfolio_state.json"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty  bool   `envconfig:"LOG_PRETTY" default:"false"`
}

func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("monitor", &s); err != nil {
		return s, fmt.Errorf("process env settings: %w", err)
	}
	return s, nil
}

type PositionConfig struct {
	Symbol    string  `yaml:"symbol"`
	Name      string  `yaml:"name"`
	Stage     int     `yaml:"stage"`
	Cost      float64 `yaml:"cost"`
	Shares    float64 `yaml:"shares"`
	MaxProfit float64 `yaml:"max_profit"`
}

type Alerts struct {
	ChangePct     float64 `yaml:"alert_change_pct"`
	VolumeRatio   float64 `yaml:"alert_volume_ratio"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	CooldownSec   int     `yaml:"cooldown_sec"`
}

type SessionWindow struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

type Calendar struct {
	Holidays       []string        `yaml:"holidays"`        // YYYY-MM-DD, market closed
	MakeupWorkdays []string        `yaml:"makeup_workdays"` // weekend workdays; exchange stays closed
	Sessions       []SessionWindow `yaml:"sessions"`
}

type Poll struct {
	ActiveIntervalSec int `yaml:"active_interval_sec"`
	RetryBackoffSec   int `yaml:"retry_backoff_sec"`
	IdleRecheckSec    int `yaml:"idle_recheck_sec"`
}

type Provider struct {
	QuoteBaseURL     string   `yaml:"quote_base_url"`
	TimeoutSec       int      `yaml:"timeout_sec"`
	RatePerSec       float64  `yaml:"rate_per_sec"`
	ShanghaiPrefixes []string `yaml:"shanghai_prefixes"` // leading digits that map to market id 1
	KlineWindowDays  int      `yaml:"kline_window_days"`
}

type Push struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Template   string `yaml:"template"`
}

type Root struct {
	Token       string           `yaml:"token"`
	Portfolio   []PositionConfig `yaml:"portfolio"`
	Alerts      Alerts           `yaml:"alerts"`
	Calendar    Calendar         `yaml:"calendar"`
	ReportTimes []string         `yaml:"report_times"`
	Poll        Poll             `yaml:"poll"`
	Provider    Provider         `yaml:"provider"`
	Push        Push             `yaml:"push"`
}

// Load reads, defaults and validates a portfolio file.
func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Root
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Root) applyDefaults() {
	if c.Alerts.ChangePct == 0 {
		c.Alerts.ChangePct = 5
	}
	if c.Alerts.VolumeRatio == 0 {
		c.Alerts.VolumeRatio = 3
	}
	if c.Alerts.StopLossPct == 0 {
		c.Alerts.StopLossPct = -8
	}
	if c.Alerts.TakeProfitPct == 0 {
		c.Alerts.TakeProfitPct = 15
	}
	if c.Alerts.CooldownSec == 0 {
		c.Alerts.CooldownSec = 1800
	}
	if len(c.Calendar.Sessions) == 0 {
		c.Calendar.Sessions = []SessionWindow{
			{Open: "09:15", Close: "11:35"},
			{Open: "12:55", Close: "15:05"},
		}
	}
	if len(c.ReportTimes) == 0 {
		c.ReportTimes = []string{"09:30", "10:00", "11:00", "13:00", "14:00", "15:00"}
	}
	if c.Poll.ActiveIntervalSec == 0 {
		c.Poll.ActiveIntervalSec = 30
	}
	if c.Poll.RetryBackoffSec == 0 {
		c.Poll.RetryBackoffSec = 5
	}
	if c.Poll.IdleRecheckSec == 0 {
		c.Poll.IdleRecheckSec = 60
	}
	if c.Provider.QuoteBaseURL == "" {
		c.Provider.QuoteBaseURL = "https://push2.eastmoney.com"
	}
	if c.Provider.TimeoutSec == 0 {
		c.Provider.TimeoutSec = 5
	}
	if c.Provider.RatePerSec == 0 {
		c.Provider.RatePerSec = 5
	}
	if len(c.Provider.ShanghaiPrefixes) == 0 {
		c.Provider.ShanghaiPrefixes = []string{"6", "5", "9", "11"}
	}
	if c.Provider.KlineWindowDays == 0 {
		c.Provider.KlineWindowDays = 150
	}
	if c.Push.BaseURL == "" {
		c.Push.BaseURL = "https://www.pushplus.plus"
	}
	if c.Push.TimeoutSec == 0 {
		c.Push.TimeoutSec = 10
	}
	if c.Push.Template == "" {
		c.Push.Template = "markdown"
	}
}

// Validate enforces required keys. A flat position must carry no cost or
// shares; a staged one must carry both.
func (c *Root) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalid)
	}
	if len(c.Portfolio) == 0 {
		return fmt.Errorf("%w: portfolio must not be empty", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Portfolio))
	for i, p := range c.Portfolio {
		if p.Symbol == "" || p.Name == "" {
			return fmt.Errorf("%w: portfolio[%d] needs symbol and name", ErrInvalid, i)
		}
		if seen[p.Symbol] {
			return fmt.Errorf("%w: duplicate symbol %s", ErrInvalid, p.Symbol)
		}
		seen[p.Symbol] = true
		if p.Stage < 0 || p.Stage > 3 {
			return fmt.Errorf("%w: %s stage %d out of range", ErrInvalid, p.Symbol, p.Stage)
		}
		if p.Stage == 0 && (p.Cost != 0 || p.Shares != 0) {
			return fmt.Errorf("%w: %s is flat but has cost or shares", ErrInvalid, p.Symbol)
		}
		if p.Stage > 0 && (p.Cost <= 0 || p.Shares <= 0) {
			return fmt.Errorf("%w: %s stage %d needs positive cost and shares", ErrInvalid, p.Symbol, p.Stage)
		}
	}
	for _, s := range c.Calendar.Sessions {
		if s.Open == "" || s.Close == "" {
			return fmt.Errorf("%w: session window needs open and close", ErrInvalid)
		}
	}
	return nil
}
