package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mboxport/mboxport/label"
)

// Convert captures all options of the convert subcommand.
type Convert struct {
	MboxPath     string
	OutDir       string
	PriorityFile string
	ShowLabels   bool
	Format       string
	Workers      int
	IgnoreLabels []string

	IncludeHeader []string
	IncludeBody   []string
	IncludeLabel  []string
	ExcludeHeader []string
	ExcludeBody   []string
	ExcludeLabel  []string
}

// Upload captures all options of the upload subcommand.
type Upload struct {
	Dir                string
	Provider           string
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	ParentFolder       string
	StateDir           string
	Resume             bool
	DryRun             bool
	MaxAttempts        int
	PriorityFile       string
	IgnoreLabels       []string
}

// RegisterConvertFlags attaches the convert flags to the command.
func RegisterConvertFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("mbox", "", "Path to the .mbox archive to convert")
	flags.String("out", "emails", "Output directory for the converted message files")
	flags.String("priority-file", "", "Label priority file, one label per line, highest first")
	flags.Bool("show-labels", false, "List the distinct resolved folders without writing any files")
	flags.String("format", "eml", "Output layout: eml or maildir")
	flags.Int("workers", 4, "Parallel file writes")
	flags.StringArray("ignore-label", label.DefaultIgnored(), "Label excluded from folder resolution (repeatable)")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("include-label", nil, "Only convert messages carrying this label (repeatable)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	flags.StringArray("exclude-label", nil, "Skip messages carrying this label (repeatable)")

	return cmd.MarkFlagRequired("mbox")
}

// LoadConvert converts the parsed flags into a Convert config with validation.
func LoadConvert(cmd *cobra.Command) (Convert, error) {
	flags := cmd.Flags()

	mboxPath, err := flags.GetString("mbox")
	if err != nil {
		return Convert{}, err
	}
	outDir, err := flags.GetString("out")
	if err != nil {
		return Convert{}, err
	}
	priorityFile, err := flags.GetString("priority-file")
	if err != nil {
		return Convert{}, err
	}
	showLabels, err := flags.GetBool("show-labels")
	if err != nil {
		return Convert{}, err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return Convert{}, err
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return Convert{}, err
	}
	ignoreLabels, err := flags.GetStringArray("ignore-label")
	if err != nil {
		return Convert{}, err
	}
	includeHeader, err := flags.GetStringArray("include-header")
	if err != nil {
		return Convert{}, err
	}
	includeBody, err := flags.GetStringArray("include-body")
	if err != nil {
		return Convert{}, err
	}
	includeLabel, err := flags.GetStringArray("include-label")
	if err != nil {
		return Convert{}, err
	}
	excludeHeader, err := flags.GetStringArray("exclude-header")
	if err != nil {
		return Convert{}, err
	}
	excludeBody, err := flags.GetStringArray("exclude-body")
	if err != nil {
		return Convert{}, err
	}
	excludeLabel, err := flags.GetStringArray("exclude-label")
	if err != nil {
		return Convert{}, err
	}

	cfg := Convert{
		MboxPath:      mboxPath,
		OutDir:        filepath.Clean(outDir),
		PriorityFile:  priorityFile,
		ShowLabels:    showLabels,
		Format:        strings.ToLower(format),
		Workers:       workers,
		IgnoreLabels:  ignoreLabels,
		IncludeHeader: includeHeader,
		IncludeBody:   includeBody,
		IncludeLabel:  includeLabel,
		ExcludeHeader: excludeHeader,
		ExcludeBody:   excludeBody,
		ExcludeLabel:  excludeLabel,
	}

	if err := validateConvert(cfg); err != nil {
		return Convert{}, err
	}
	return cfg, nil
}

func validateConvert(cfg Convert) error {
	if cfg.MboxPath == "" {
		return fmt.Errorf("--mbox is required")
	}
	if cfg.OutDir == "" && !cfg.ShowLabels {
		return fmt.Errorf("--out is required")
	}
	switch cfg.Format {
	case "eml", "maildir":
	default:
		return fmt.Errorf("invalid --format: %s", cfg.Format)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("--workers must be positive")
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0 || len(cfg.IncludeLabel) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0 || len(cfg.ExcludeLabel) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}
	return nil
}

// RegisterUploadFlags attaches the upload flags to the command.
func RegisterUploadFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("dir", "", "Directory of converted message files to upload")
	flags.String("config", "", "YAML file with connection parameters (flags win over file values)")
	flags.String("provider", "custom", "IMAP provider: gmail or custom")
	flags.String("imap-host", "", "IMAP server hostname (custom provider)")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username or email address")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("parent-folder", "ARCH-IMPORT", "Mailbox every imported folder is created under (empty for none)")
	flags.String("state-dir", defaultStateDir, "Directory for the upload ledger")
	flags.Bool("resume", true, "Skip messages the ledger already confirms uploaded")
	flags.Bool("dry-run", false, "Resolve folders and emit stats without connecting")
	flags.Int("max-attempts", 3, "Upload attempts per message before it is recorded failed")
	flags.String("priority-file", "", "Label priority file, one label per line, highest first")
	flags.StringArray("ignore-label", label.DefaultIgnored(), "Label excluded from folder resolution (repeatable)")

	return cmd.MarkFlagRequired("dir")
}

// fileConfig is the YAML shape accepted by --config, patterned after the
// usual mail-sync config files.
type fileConfig struct {
	Server struct {
		Provider           string `yaml:"provider"`
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		UseTLS             *bool  `yaml:"use_tls"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"server"`
	ParentFolder *string  `yaml:"parent_folder"`
	PriorityFile string   `yaml:"priority_file"`
	IgnoreLabels []string `yaml:"ignore_labels"`
}

// LoadUpload converts the parsed flags, plus an optional YAML config file,
// into an Upload config with validation. Explicitly set flags win over
// file values.
func LoadUpload(cmd *cobra.Command) (Upload, error) {
	flags := cmd.Flags()

	dir, err := flags.GetString("dir")
	if err != nil {
		return Upload{}, err
	}
	configPath, err := flags.GetString("config")
	if err != nil {
		return Upload{}, err
	}
	provider, err := flags.GetString("provider")
	if err != nil {
		return Upload{}, err
	}
	host, err := flags.GetString("imap-host")
	if err != nil {
		return Upload{}, err
	}
	port, err := flags.GetInt("imap-port")
	if err != nil {
		return Upload{}, err
	}
	username, err := flags.GetString("imap-user")
	if err != nil {
		return Upload{}, err
	}
	password, err := flags.GetString("imap-pass")
	if err != nil {
		return Upload{}, err
	}
	useTLS, err := flags.GetBool("use-tls")
	if err != nil {
		return Upload{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return Upload{}, err
	}
	parentFolder, err := flags.GetString("parent-folder")
	if err != nil {
		return Upload{}, err
	}
	stateDir, err := flags.GetString("state-dir")
	if err != nil {
		return Upload{}, err
	}
	resume, err := flags.GetBool("resume")
	if err != nil {
		return Upload{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Upload{}, err
	}
	maxAttempts, err := flags.GetInt("max-attempts")
	if err != nil {
		return Upload{}, err
	}
	priorityFile, err := flags.GetString("priority-file")
	if err != nil {
		return Upload{}, err
	}
	ignoreLabels, err := flags.GetStringArray("ignore-label")
	if err != nil {
		return Upload{}, err
	}

	cfg := Upload{
		Dir:                dir,
		Provider:           strings.ToLower(provider),
		Host:               host,
		Port:               port,
		Username:           username,
		Password:           password,
		UseTLS:             useTLS,
		InsecureSkipVerify: insecureSkipVerify,
		ParentFolder:       parentFolder,
		StateDir:           stateDir,
		Resume:             resume,
		DryRun:             dryRun,
		MaxAttempts:        maxAttempts,
		PriorityFile:       priorityFile,
		IgnoreLabels:       ignoreLabels,
	}

	if configPath != "" {
		if err := mergeFile(cmd, &cfg, configPath); err != nil {
			return Upload{}, err
		}
	}

	if cfg.Password == "" {
		cfg.Password = os.Getenv("IMAP_PASS")
	}

	if cfg.Provider == "gmail" {
		if cfg.Host == "" {
			cfg.Host = "imap.gmail.com"
		}
		if !flags.Changed("imap-port") {
			cfg.Port = 993
		}
	}

	if cfg.StateDir == "" {
		cfg.StateDir, err = defaultStateDir()
		if err != nil {
			return Upload{}, err
		}
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)

	if err := validateUpload(cfg); err != nil {
		return Upload{}, err
	}
	return cfg, nil
}

func mergeFile(cmd *cobra.Command, cfg *Upload, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("provider") && file.Server.Provider != "" {
		cfg.Provider = strings.ToLower(file.Server.Provider)
	}
	if !flags.Changed("imap-host") && file.Server.Host != "" {
		cfg.Host = file.Server.Host
	}
	if !flags.Changed("imap-port") && file.Server.Port != 0 {
		cfg.Port = file.Server.Port
	}
	if !flags.Changed("imap-user") && file.Server.Username != "" {
		cfg.Username = file.Server.Username
	}
	if !flags.Changed("imap-pass") && file.Server.Password != "" {
		cfg.Password = file.Server.Password
	}
	if !flags.Changed("use-tls") && file.Server.UseTLS != nil {
		cfg.UseTLS = *file.Server.UseTLS
	}
	if !flags.Changed("insecure-skip-verify") && file.Server.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}
	if !flags.Changed("parent-folder") && file.ParentFolder != nil {
		cfg.ParentFolder = *file.ParentFolder
	}
	if !flags.Changed("priority-file") && file.PriorityFile != "" {
		cfg.PriorityFile = file.PriorityFile
	}
	if !flags.Changed("ignore-label") && len(file.IgnoreLabels) > 0 {
		cfg.IgnoreLabels = file.IgnoreLabels
	}

	return nil
}

func validateUpload(cfg Upload) error {
	if cfg.Dir == "" {
		return fmt.Errorf("--dir is required")
	}
	switch cfg.Provider {
	case "gmail", "custom":
	default:
		return fmt.Errorf("invalid --provider: %s", cfg.Provider)
	}
	if cfg.DryRun {
		return nil
	}
	if cfg.Host == "" {
		return fmt.Errorf("--imap-host is required for the custom provider")
	}
	if cfg.Username == "" {
		return fmt.Errorf("--imap-user is required")
	}
	if cfg.Password == "" {
		return fmt.Errorf("IMAP password must be provided via --imap-pass, the config file or the IMAP_PASS env var")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("--max-attempts must be positive")
	}
	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mboxport", "state"), nil
}
