package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for a sarpivot run
type Config struct {
	Sources    []string
	Format     string
	Output     OutputConfig
	Extract    ExtractConfig
	Pipeline   PipelineConfig
	Pivot      PivotConfig
	Validation ValidateConfig
	Catalog    CatalogConfig
	Storage    StorageConfig
	Metrics    MetricsConfig
	Log        LogConfig
}

type OutputConfig struct {
	Directory   string // Output location; defaults to the format name (e.g. ./csv)
	Encoding    string // Table encoding: text, parquet, msgpack (parquet/msgpack need format=csv)
	Compression string // none, gzip, zstd
}

type ExtractConfig struct {
	Binary         string // Extractor binary (default: sadf)
	TimeoutSeconds int    // Per-invocation timeout
	MaxConcurrent  int    // Max concurrent extractor processes
	Delimiter      string // Field delimiter of the extractor's delimited output
}

type PipelineConfig struct {
	Concurrency int // Metrics processed in parallel
}

type PivotConfig struct {
	Enabled   bool
	FillValue string // Written for (index, entity) pairs absent from the source
}

type ValidateConfig struct {
	TimeColumn string
}

type CatalogConfig struct {
	File string // Optional catalog file replacing the built-in sysstat catalog
}

type StorageConfig struct {
	Backend string // local, s3, azure, mqtt, duckdb
	// S3/MinIO configuration
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3PathStyle bool
	S3Prefix    string // Key prefix prepended to every object
	// Azure Blob Storage configuration
	AzureConnectionString   string
	AzureAccountName        string
	AzureAccountKey         string
	AzureSASToken           string
	AzureContainer          string
	AzureEndpoint           string
	AzureUseManagedIdentity bool
	// MQTT configuration
	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTUsername    string
	MQTTPassword    string
	MQTTQoS         int
	// DuckDB configuration
	DuckDBPath string
	// Retry settings for remote backends
	MaxRetries int
}

type MetricsConfig struct {
	TextFile string // Prometheus textfile written at the end of a run; empty disables
}

type LogConfig struct {
	Level   string
	Format  string
	Verbose bool
}

// Supported values
var (
	Formats      = []string{"csv", "json", "xml"}
	Encodings    = []string{"text", "parquet", "msgpack"}
	Compressions = []string{"none", "gzip", "zstd"}
	Backends     = []string{"local", "s3", "azure", "mqtt", "duckdb"}
)

// ErrNoSources is returned when no source recordings were given.
var ErrNoSources = errors.New("at least one source file is required")

// NewFlagSet returns the command line flags understood by Load.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sarpivot", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringP("format", "f", "csv", "Output format: csv, json, xml")
	fs.StringP("output-dir", "o", "", "Directory to store the output files (default: a directory named after the format)")
	fs.IntP("timeout", "t", 60, "Timeout for each extractor invocation in seconds")
	fs.BoolP("verbose", "v", false, "Enable verbose output")
	fs.IntP("jobs", "j", 0, "Metrics processed in parallel (default: number of CPUs, max 8)")
	fs.String("encoding", "text", "Table encoding for csv format: text, parquet, msgpack")
	fs.String("compression", "none", "Output compression: none, gzip, zstd")
	fs.String("fill", "0", "Value written for missing pivot cells")
	fs.Bool("no-pivot", false, "Disable wide-table pivoting")
	fs.String("catalog", "", "Metric catalog file (toml, yaml or json)")
	fs.String("binary", "sadf", "Extractor binary")
	fs.String("backend", "local", "Output backend: local, s3, azure, mqtt, duckdb")
	fs.String("metrics-file", "", "Write run statistics in Prometheus text format to this file")
	fs.String("config", "", "Configuration file (default: sarpivot.toml in ., /etc/sarpivot, $HOME/.sarpivot)")
	return fs
}

// flagBindings maps viper keys to flag names
var flagBindings = map[string]string{
	"format":               "format",
	"output.directory":     "output-dir",
	"extract.timeout":      "timeout",
	"log.verbose":          "verbose",
	"pipeline.concurrency": "jobs",
	"output.encoding":      "encoding",
	"output.compression":   "compression",
	"pivot.fill_value":     "fill",
	"catalog.file":         "catalog",
	"extract.binary":       "binary",
	"storage.backend":      "backend",
	"metrics.textfile":     "metrics-file",
}

// Load parses args and merges flags, environment, config file and defaults
// (in that order of precedence).
func Load(args []string) (*Config, error) {
	fs := NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadFlags(fs)
}

// LoadFlags builds a Config from an already parsed flag set.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("SARPIVOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range flagBindings {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	// Config file (optional)
	configFile, _ := fs.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sarpivot")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sarpivot/")
		v.AddConfigPath("$HOME/.sarpivot/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Sources: fs.Args(),
		Format:  strings.ToLower(v.GetString("format")),
		Output: OutputConfig{
			Directory:   v.GetString("output.directory"),
			Encoding:    strings.ToLower(v.GetString("output.encoding")),
			Compression: strings.ToLower(v.GetString("output.compression")),
		},
		Extract: ExtractConfig{
			Binary:         v.GetString("extract.binary"),
			TimeoutSeconds: v.GetInt("extract.timeout"),
			MaxConcurrent:  v.GetInt("extract.max_concurrent"),
			Delimiter:      v.GetString("extract.delimiter"),
		},
		Pipeline: PipelineConfig{
			Concurrency: v.GetInt("pipeline.concurrency"),
		},
		Pivot: PivotConfig{
			Enabled:   v.GetBool("pivot.enabled"),
			FillValue: v.GetString("pivot.fill_value"),
		},
		Validation: ValidateConfig{
			TimeColumn: v.GetString("validate.time_column"),
		},
		Catalog: CatalogConfig{
			File: v.GetString("catalog.file"),
		},
		Storage: StorageConfig{
			Backend:                 strings.ToLower(v.GetString("storage.backend")),
			S3Bucket:                v.GetString("storage.s3_bucket"),
			S3Region:                v.GetString("storage.s3_region"),
			S3Endpoint:              v.GetString("storage.s3_endpoint"),
			S3AccessKey:             v.GetString("storage.s3_access_key"),
			S3SecretKey:             v.GetString("storage.s3_secret_key"),
			S3UseSSL:                v.GetBool("storage.s3_use_ssl"),
			S3PathStyle:             v.GetBool("storage.s3_path_style"),
			S3Prefix:                v.GetString("storage.s3_prefix"),
			AzureConnectionString:   v.GetString("storage.azure_connection_string"),
			AzureAccountName:        v.GetString("storage.azure_account_name"),
			AzureAccountKey:         v.GetString("storage.azure_account_key"),
			AzureSASToken:           v.GetString("storage.azure_sas_token"),
			AzureContainer:          v.GetString("storage.azure_container"),
			AzureEndpoint:           v.GetString("storage.azure_endpoint"),
			AzureUseManagedIdentity: v.GetBool("storage.azure_use_managed_identity"),
			MQTTBroker:              v.GetString("storage.mqtt_broker"),
			MQTTClientID:            v.GetString("storage.mqtt_client_id"),
			MQTTTopicPrefix:         v.GetString("storage.mqtt_topic_prefix"),
			MQTTUsername:            v.GetString("storage.mqtt_username"),
			MQTTPassword:            v.GetString("storage.mqtt_password"),
			MQTTQoS:                 v.GetInt("storage.mqtt_qos"),
			DuckDBPath:              v.GetString("storage.duckdb_path"),
			MaxRetries:              v.GetInt("storage.max_retries"),
		},
		Metrics: MetricsConfig{
			TextFile: v.GetString("metrics.textfile"),
		},
		Log: LogConfig{
			Level:   v.GetString("log.level"),
			Format:  v.GetString("log.format"),
			Verbose: v.GetBool("log.verbose"),
		},
	}

	// --no-pivot only ever disables
	if noPivot, _ := fs.GetBool("no-pivot"); noPivot {
		cfg.Pivot.Enabled = false
	}

	// Output directory is derived from the format unless set explicitly
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = cfg.Format
	}
	if cfg.Log.Verbose {
		cfg.Log.Level = "debug"
	}
	if cfg.Pipeline.Concurrency <= 0 {
		cfg.Pipeline.Concurrency = getDefaultConcurrency()
	}
	if cfg.Extract.MaxConcurrent <= 0 {
		cfg.Extract.MaxConcurrent = runtime.NumCPU()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("format", "csv")

	// Output defaults (directory is derived from format when empty)
	v.SetDefault("output.directory", "")
	v.SetDefault("output.encoding", "text")
	v.SetDefault("output.compression", "none")

	// Extractor defaults
	v.SetDefault("extract.binary", "sadf")
	v.SetDefault("extract.timeout", 60)
	v.SetDefault("extract.max_concurrent", runtime.NumCPU())
	v.SetDefault("extract.delimiter", ";") // sadf -d separator

	// Pipeline defaults
	v.SetDefault("pipeline.concurrency", getDefaultConcurrency())

	// Pivot defaults
	v.SetDefault("pivot.enabled", true)
	v.SetDefault("pivot.fill_value", "0")

	// Validation defaults
	v.SetDefault("validate.time_column", "timestamp")

	// Storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.s3_path_style", false)
	v.SetDefault("storage.mqtt_client_id", "sarpivot")
	v.SetDefault("storage.mqtt_topic_prefix", "sarpivot")
	v.SetDefault("storage.mqtt_qos", 1)
	v.SetDefault("storage.duckdb_path", "./sarpivot.duckdb")
	v.SetDefault("storage.max_retries", 3)

	// Run statistics
	v.SetDefault("metrics.textfile", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.verbose", false)
}

func getDefaultConcurrency() int {
	// Each metric spawns extractor processes; beyond 8 the disk becomes the bottleneck
	cores := runtime.NumCPU()
	if cores > 8 {
		return 8
	}
	return cores
}

// Validate checks value ranges and cross-field constraints.
func (cfg *Config) Validate() error {
	if len(cfg.Sources) == 0 {
		return ErrNoSources
	}
	if !oneOf(cfg.Format, Formats) {
		return fmt.Errorf("invalid format %q (choose from %s)", cfg.Format, strings.Join(Formats, ", "))
	}
	if !oneOf(cfg.Output.Encoding, Encodings) {
		return fmt.Errorf("invalid encoding %q (choose from %s)", cfg.Output.Encoding, strings.Join(Encodings, ", "))
	}
	if cfg.Output.Encoding != "text" && cfg.Format != "csv" {
		return fmt.Errorf("encoding %q requires format csv, got %s", cfg.Output.Encoding, cfg.Format)
	}
	if !oneOf(cfg.Output.Compression, Compressions) {
		return fmt.Errorf("invalid compression %q (choose from %s)", cfg.Output.Compression, strings.Join(Compressions, ", "))
	}
	if !oneOf(cfg.Storage.Backend, Backends) {
		return fmt.Errorf("invalid storage backend %q (choose from %s)", cfg.Storage.Backend, strings.Join(Backends, ", "))
	}
	if cfg.Extract.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", cfg.Extract.TimeoutSeconds)
	}
	if len([]rune(cfg.Extract.Delimiter)) != 1 {
		return fmt.Errorf("extract.delimiter must be a single character, got %q", cfg.Extract.Delimiter)
	}
	if cfg.Validation.TimeColumn == "" {
		return fmt.Errorf("validate.time_column must not be empty")
	}
	switch cfg.Storage.Backend {
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3_bucket is required for the s3 backend")
		}
	case "azure":
		if cfg.Storage.AzureContainer == "" {
			return fmt.Errorf("storage.azure_container is required for the azure backend")
		}
	case "mqtt":
		if cfg.Storage.MQTTBroker == "" {
			return fmt.Errorf("storage.mqtt_broker is required for the mqtt backend")
		}
		if cfg.Storage.MQTTQoS < 0 || cfg.Storage.MQTTQoS > 2 {
			return fmt.Errorf("storage.mqtt_qos must be 0, 1 or 2, got %d", cfg.Storage.MQTTQoS)
		}
	}
	return nil
}

// Extension returns the file extension for table outputs.
func (cfg *Config) Extension() string {
	switch cfg.Output.Encoding {
	case "parquet":
		return "parquet"
	case "msgpack":
		return "msgpack"
	default:
		return cfg.Format
	}
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
