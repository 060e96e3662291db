// Package config loads parley's runtime configuration: a YAML file with
// defaults for every field, overridden by environment variables (and a .env
// file when present).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/llm"
)

// Modes accepted by Validate.
const (
	ModeServe     = "serve"
	ModeDial      = "dial"
	ModeInterview = "interview"
	ModeScore     = "score"
	ModeExtract   = "extract"
)

// Speech outputs for meetings.
const (
	SpeechBrowser = "browser"
	SpeechDevice  = "device"
)

// Store backends for live session snapshots.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// LLMConfig points at the OpenAI-compatible completion service.
type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// ConversationConfig overrides the built-in profile limits and pacing.
type ConversationConfig struct {
	HistoryWindow int           `yaml:"history_window"`
	MaxDuration   time.Duration `yaml:"max_duration"`
	MaxNoResponse int           `yaml:"max_no_response"`

	PacingPerWord time.Duration `yaml:"pacing_per_word"`
	PacingFloor   time.Duration `yaml:"pacing_floor"`
	PacingCeiling time.Duration `yaml:"pacing_ceiling"`

	Silence       time.Duration `yaml:"silence"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ListenTimeout time.Duration `yaml:"listen_timeout"`
}

// TelephonyConfig covers the phone provider and the webhook service.
type TelephonyConfig struct {
	AccountSID         string        `yaml:"account_sid"`
	AuthToken          string        `yaml:"auth_token"`
	FromNumber         string        `yaml:"from_number"`
	PublicURL          string        `yaml:"public_url"`
	CountryCode        string        `yaml:"country_code"`
	ValidateSignatures bool          `yaml:"validate_signatures"`
	Voice              string        `yaml:"voice"`
	TurnWait           time.Duration `yaml:"turn_wait"`
	GatherTimeout      int           `yaml:"gather_timeout"`
	ListenTimeout      time.Duration `yaml:"listen_timeout"`
	CallsPerMinute     float64       `yaml:"calls_per_minute"`
}

// MeetingConfig covers the browser and the interview schedule.
type MeetingConfig struct {
	ProfileDir    string        `yaml:"profile_dir"`
	Headless      bool          `yaml:"headless"`
	Schedule      string        `yaml:"schedule"`
	Contacts      string        `yaml:"contacts"`
	Timezone      string        `yaml:"timezone"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Lead          time.Duration `yaml:"lead"`
	StartDelay    time.Duration `yaml:"start_delay"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	LoginTimeout  time.Duration `yaml:"login_timeout"`
}

// SpeechConfig selects how the interviewer's lines are voiced.
type SpeechConfig struct {
	Output  string  `yaml:"output"`
	Device  string  `yaml:"device"`
	APIKey  string  `yaml:"api_key"`
	BaseURL string  `yaml:"base_url"`
	Model   string  `yaml:"model"`
	Voice   string  `yaml:"voice"`
	Speed   float64 `yaml:"speed"`
	Rate    float64 `yaml:"rate"`
}

// TranscriptsConfig names where finished conversations are written.
type TranscriptsConfig struct {
	PhoneDir     string `yaml:"phone_dir"`
	InterviewDir string `yaml:"interview_dir"`
}

// ScoringConfig drives the transcript scorer. Transcripts are read from
// TranscriptsConfig.InterviewDir.
type ScoringConfig struct {
	VerifiedDir string        `yaml:"verified_dir"`
	ResultsFile string        `yaml:"results_file"`
	Workers     int           `yaml:"workers"`
	Settle      time.Duration `yaml:"settle"`
}

// ExtractConfig drives the booking extractor. Transcripts are read from
// TranscriptsConfig.PhoneDir.
type ExtractConfig struct {
	Applications string `yaml:"applications"`
	Output       string `yaml:"output"`
	Workers      int    `yaml:"workers"`
}

// StoreConfig selects the live session store.
type StoreConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Config is the whole runtime configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Telephony    TelephonyConfig    `yaml:"telephony"`
	Meeting      MeetingConfig      `yaml:"meeting"`
	Speech       SpeechConfig       `yaml:"speech"`
	Transcripts  TranscriptsConfig  `yaml:"transcripts"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	Extract      ExtractConfig      `yaml:"extract"`
	Store        StoreConfig        `yaml:"store"`
	Server       ServerConfig       `yaml:"server"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	pacing := conversation.DefaultPacing()
	return Config{
		LLM: LLMConfig{
			BaseURL: llm.DefaultBaseURL,
			Model:   llm.DefaultModel,
			Timeout: 30 * time.Second,
		},
		Conversation: ConversationConfig{
			PacingPerWord: pacing.PerWord,
			PacingFloor:   pacing.Floor,
			PacingCeiling: pacing.Ceiling,
			Silence:       3 * time.Second,
			PollInterval:  100 * time.Millisecond,
			ListenTimeout: 120 * time.Second,
		},
		Telephony: TelephonyConfig{
			CountryCode:    "+91",
			Voice:          "alice",
			TurnWait:       10 * time.Second,
			GatherTimeout:  10,
			ListenTimeout:  60 * time.Second,
			CallsPerMinute: 6,
		},
		Meeting: MeetingConfig{
			ProfileDir:    "chrome_profile",
			Schedule:      "data/scheduled_interviews.xlsx",
			Contacts:      "data/applications_data.xlsx",
			Timezone:      "Local",
			CheckInterval: time.Minute,
			Lead:          5 * time.Minute,
			StartDelay:    time.Minute,
			MaxConcurrent: 2,
			LoginTimeout:  60 * time.Second,
		},
		Speech: SpeechConfig{
			Output: SpeechBrowser,
			Model:  "tts-1",
			Voice:  "alloy",
			Speed:  1.0,
			Rate:   0.9,
		},
		Transcripts: TranscriptsConfig{
			PhoneDir:     "transcripts",
			InterviewDir: "unverified_transcripts",
		},
		Scoring: ScoringConfig{
			VerifiedDir: "verified_transcripts",
			ResultsFile: "data/interview_scores.xlsx",
			Workers:     2,
			Settle:      time.Second,
		},
		Extract: ExtractConfig{
			Applications: "data/applications_data.xlsx",
			Output:       "data/scheduled_interviews.xlsx",
			Workers:      4,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Prefix:  "parley",
			TTL:     24 * time.Hour,
		},
		Server: ServerConfig{
			Addr: ":5000",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the .env files that exist among paths.
// Variables already set in the environment are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"GROQ_API_KEY":        &c.LLM.APIKey,
		"GROQ_API_URL":        &c.LLM.BaseURL,
		"LLM_MODEL":           &c.LLM.Model,
		"TWILIO_ACCOUNT_SID":  &c.Telephony.AccountSID,
		"TWILIO_AUTH_TOKEN":   &c.Telephony.AuthToken,
		"TWILIO_PHONE_NUMBER": &c.Telephony.FromNumber,
		"PARLEY_PUBLIC_URL":   &c.Telephony.PublicURL,
		"TTS_API_KEY":         &c.Speech.APIKey,
		"PARLEY_ADDR":         &c.Server.Addr,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Store.RedisAddr = v
		c.Store.Backend = StoreRedis
	}
	if v, ok := lookup("PARLEY_HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PARLEY_HEADLESS %q: %w", v, err)
		}
		c.Meeting.Headless = b
	}
	return nil
}

// Validate reports every setting mode needs but does not have.
func (c Config) Validate(mode string) error {
	var errs []error
	need := func(ok bool, what string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s is required for %s", what, mode))
		}
	}

	switch mode {
	case ModeServe, ModeInterview, ModeScore, ModeExtract:
		need(c.LLM.APIKey != "", "llm.api_key (GROQ_API_KEY)")
	case ModeDial:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	switch mode {
	case ModeServe:
		if c.Telephony.ValidateSignatures {
			need(c.Telephony.AuthToken != "", "telephony.auth_token (TWILIO_AUTH_TOKEN)")
			need(c.Telephony.PublicURL != "", "telephony.public_url (PARLEY_PUBLIC_URL)")
		}
		need((c.Server.CertFile == "") == (c.Server.KeyFile == ""), "server.cert_file with server.key_file")
	case ModeDial:
		need(c.Telephony.AccountSID != "", "telephony.account_sid (TWILIO_ACCOUNT_SID)")
		need(c.Telephony.AuthToken != "", "telephony.auth_token (TWILIO_AUTH_TOKEN)")
		need(c.Telephony.FromNumber != "", "telephony.from_number (TWILIO_PHONE_NUMBER)")
		need(c.Telephony.PublicURL != "", "telephony.public_url (PARLEY_PUBLIC_URL)")
	case ModeInterview:
		need(c.Meeting.Schedule != "", "meeting.schedule")
		if _, err := c.Location(); err != nil {
			errs = append(errs, err)
		}
		switch c.Speech.Output {
		case SpeechBrowser:
		case SpeechDevice:
			need(c.Speech.APIKey != "", "speech.api_key (TTS_API_KEY)")
		default:
			errs = append(errs, fmt.Errorf("unknown speech.output %q", c.Speech.Output))
		}
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		need(c.Store.RedisAddr != "", "store.redis_addr (REDIS_ADDR)")
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}

// Location resolves the meeting timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Meeting.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid meeting.timezone %q: %w", c.Meeting.Timezone, err)
	}
	return loc, nil
}

// Pacing is the configured speech pacing.
func (c ConversationConfig) Pacing() conversation.Pacing {
	return conversation.Pacing{
		PerWord: c.PacingPerWord,
		Floor:   c.PacingFloor,
		Ceiling: c.PacingCeiling,
	}
}

// Apply overrides p's limits with the non-zero settings.
func (c ConversationConfig) Apply(p conversation.Profile) conversation.Profile {
	if c.HistoryWindow > 0 {
		p.HistoryWindow = c.HistoryWindow
	}
	if c.MaxDuration > 0 {
		p.MaxDuration = c.MaxDuration
	}
	if c.MaxNoResponse > 0 {
		p.MaxNoResponse = c.MaxNoResponse
	}
	return p
}
