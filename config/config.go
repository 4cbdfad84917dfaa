package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config captures every option of a threadgraph run. Values come from
// Default, then an optional YAML file, then flags set on the command line.
type Config struct {
	InputDir    string   `yaml:"input_dir"`
	FilePattern string   `yaml:"file_pattern"`
	Exclude     []string `yaml:"exclude"`

	MboxPath string `yaml:"mbox"`

	IMAPHost           string `yaml:"imap_host"`
	IMAPPort           int    `yaml:"imap_port"`
	IMAPUser           string `yaml:"imap_user"`
	IMAPPass           string `yaml:"imap_pass"`
	IMAPFolder         string `yaml:"imap_folder"`
	UseTLS             bool   `yaml:"use_tls"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	DBPath    string `yaml:"db"`
	OrgDomain string `yaml:"org_domain"`
	Workers   int    `yaml:"workers"`
	BatchSize int    `yaml:"batch_size"`
	Cleanup   bool   `yaml:"cleanup"`
	ExportDir string `yaml:"export_dir"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`

	IncludeHeader []string `yaml:"include_header"`
	IncludeBody   []string `yaml:"include_body"`
	ExcludeHeader []string `yaml:"exclude_header"`
	ExcludeBody   []string `yaml:"exclude_body"`
}

// DefaultExclude lists files of the Enron maildir corpus that are skipped for
// privacy reasons. Paths are relative to the input directory.
var DefaultExclude = []string{
	"skilling-j/1584.",
	"gay-r/all_documents/12.",
	"gay-r/all_documents/206.",
	"gay-r/all_documents/74.",
	"gay-r/sent/12.",
	"gay-r/sent/205.",
	"gay-r/sent/74.",
	"richey-c/sent_items/15.",
	"richey-c/sent_items/2.",
	"richey-c/sent_items/20.",
	"richey-c/sent_items/3.",
	"richey-c/sent_items/32.",
	"richey-c/sent_items/36.",
	"richey-c/sent_items/4.",
	"richey-c/sent_items/45.",
	"richey-c/sent_items/5.",
	"richey-c/sent_items/6.",
	"richey-c/sent_items/7.",
	"richey-c/inbox/10.",
	"richey-c/inbox/11.",
	"richey-c/inbox/13.",
	"richey-c/inbox/14.",
	"richey-c/inbox/15.",
	"richey-c/inbox/16.",
	"richey-c/inbox/17.",
	"richey-c/inbox/2.",
	"richey-c/inbox/33.",
	"richey-c/inbox/34.",
	"richey-c/inbox/44.",
	"richey-c/inbox/45.",
}

func Default() Config {
	return Config{
		FilePattern: "*.",
		Exclude:     append([]string(nil), DefaultExclude...),
		IMAPPort:    993,
		IMAPFolder:  "INBOX",
		UseTLS:      true,
		DBPath:      filepath.Join("output", "threadgraph.db"),
		OrgDomain:   "enron.com",
		Workers:     runtime.GOMAXPROCS(0),
		BatchSize:   1000,
		ExportDir:   filepath.Join("output", "parquet"),
		LogLevel:    "info",
	}
}

// RegisterFlags attaches all CLI flags as persistent flags of the root command.
func RegisterFlags(cmd *cobra.Command) error {
	d := Default()

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("input", "", "Directory tree of raw thread files")
	flags.String("pattern", d.FilePattern, "File name pattern for the directory source")
	flags.StringArray("exclude", nil, "Path relative to --input to skip (repeatable; replaces the built-in list)")
	flags.String("mbox", "", "Path to an mbox archive to read threads from")
	flags.String("imap-host", "", "IMAP server hostname to read threads from")
	flags.Int("imap-port", d.IMAPPort, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.String("imap-folder", d.IMAPFolder, "IMAP folder to read")
	flags.Bool("use-tls", d.UseTLS, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("db", d.DBPath, "SQLite database holding all tables")
	flags.String("org-domain", d.OrgDomain, "Email domain used to derive canonical aliases")
	flags.Int("workers", d.Workers, "Number of parallel parse and match workers")
	flags.Int("batch-size", d.BatchSize, "Email rows buffered per write")
	flags.Bool("cleanup", false, "Drop intermediate tables after reconciliation")
	flags.String("export-dir", d.ExportDir, "Directory for Parquet exports")
	flags.String("log-level", d.LogLevel, "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stdout only when empty)")
	flags.StringArray("include-header", nil, "Regex allow-list applied to thread headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to thread bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to thread headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to thread bodies (mutually exclusive with include flags)")

	return cmd.MarkPersistentFlagFilename("config", "yaml", "yml")
}

// LoadConfig builds the Config for cmd: defaults, then the YAML file named by
// --config, then every flag explicitly set on the command line.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	cfg := Default()
	flags := cmd.Flags()

	path, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if cfg, err = ReadFile(path, cfg); err != nil {
			return Config{}, err
		}
	}

	strs := map[string]*string{
		"input":       &cfg.InputDir,
		"pattern":     &cfg.FilePattern,
		"mbox":        &cfg.MboxPath,
		"imap-host":   &cfg.IMAPHost,
		"imap-user":   &cfg.IMAPUser,
		"imap-pass":   &cfg.IMAPPass,
		"imap-folder": &cfg.IMAPFolder,
		"db":          &cfg.DBPath,
		"org-domain":  &cfg.OrgDomain,
		"export-dir":  &cfg.ExportDir,
		"log-level":   &cfg.LogLevel,
		"log-dir":     &cfg.LogDir,
	}
	for name, dst := range strs {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetString(name); err != nil {
			return Config{}, err
		}
	}

	ints := map[string]*int{
		"imap-port":  &cfg.IMAPPort,
		"workers":    &cfg.Workers,
		"batch-size": &cfg.BatchSize,
	}
	for name, dst := range ints {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetInt(name); err != nil {
			return Config{}, err
		}
	}

	bools := map[string]*bool{
		"use-tls":              &cfg.UseTLS,
		"insecure-skip-verify": &cfg.InsecureSkipVerify,
		"cleanup":              &cfg.Cleanup,
	}
	for name, dst := range bools {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetBool(name); err != nil {
			return Config{}, err
		}
	}

	arrays := map[string]*[]string{
		"exclude":        &cfg.Exclude,
		"include-header": &cfg.IncludeHeader,
		"include-body":   &cfg.IncludeBody,
		"exclude-header": &cfg.ExcludeHeader,
		"exclude-body":   &cfg.ExcludeBody,
	}
	for name, dst := range arrays {
		if !flags.Changed(name) {
			continue
		}
		if *dst, err = flags.GetStringArray(name); err != nil {
			return Config{}, err
		}
	}

	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.OrgDomain = strings.ToLower(strings.TrimSpace(cfg.OrgDomain))
	if cfg.InputDir != "" {
		cfg.InputDir = filepath.Clean(cfg.InputDir)
	}
	cfg.DBPath = filepath.Clean(cfg.DBPath)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadFile overlays the YAML document at path onto base.
func ReadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return base, nil
}

func validateConfig(cfg Config) error {
	if cfg.DBPath == "" || cfg.DBPath == "." {
		return fmt.Errorf("--db is required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("--workers must be positive")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive")
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// Source names the configured input.
type Source string

const (
	SourceDir  Source = "dir"
	SourceMbox Source = "mbox"
	SourceIMAP Source = "imap"
)

// InputSource validates the input options and reports which source to read.
// Exactly one of --input, --mbox and --imap-host must be set.
func (c Config) InputSource() (Source, error) {
	var sources []Source
	if c.InputDir != "" {
		sources = append(sources, SourceDir)
	}
	if c.MboxPath != "" {
		sources = append(sources, SourceMbox)
	}
	if c.IMAPHost != "" {
		sources = append(sources, SourceIMAP)
	}
	if len(sources) != 1 {
		return "", fmt.Errorf("exactly one of --input, --mbox or --imap-host is required")
	}

	switch sources[0] {
	case SourceDir:
		if c.FilePattern == "" {
			return "", fmt.Errorf("--pattern must not be empty")
		}
		if _, err := filepath.Match(c.FilePattern, ""); err != nil {
			return "", fmt.Errorf("invalid --pattern %q: %w", c.FilePattern, err)
		}
	case SourceIMAP:
		if c.IMAPUser == "" {
			return "", fmt.Errorf("--imap-user is required")
		}
		if c.IMAPPass == "" {
			return "", fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if c.IMAPPort <= 0 || c.IMAPPort > 65535 {
			return "", fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	}
	return sources[0], nil
}
