package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/exam-dataset/internal/ocr"
	"github.com/a3tai/exam-dataset/internal/render"
)

const (
	// Mode constants
	ModeBuild      = "build"
	ModeAnswerKeys = "answerkeys"
	ModeMerge      = "merge"
	ModeDedupe     = "dedupe"
	ModeSeed       = "seed"
	ModeLabels     = "labels"
	ModeReview     = "review"
	ModeMCP        = "mcp"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultBatchSize   = ocr.DefaultBatchSize
	DefaultOCRTimeout  = 60 * time.Second
	DefaultGinMode     = "release"

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "EXAM_DATASET"
)

// Modes lists every accepted --mode value.
var Modes = []string{ModeBuild, ModeAnswerKeys, ModeMerge, ModeDedupe, ModeSeed, ModeLabels, ModeReview, ModeMCP}

// Config holds all configuration of the exam dataset tool
type Config struct {
	Mode       string
	ConfigFile string

	// Inputs and outputs
	PDFDirectory    string
	OutputDirectory string
	DatasetPath     string // defaults to <out>/dataset.jsonl
	EditsPath       string // defaults to <out>/edits.json
	OutputPath      string // merge/dedupe target, derived when empty
	SubsetPath      string
	AnswerKeyPath   string
	AnswerKeyPDF    string
	Years           []int
	Report          bool

	// OCR
	NoOCR        bool
	OCRProvider  string
	OCRModel     string
	OCRLanguage  string
	BatchSize    int
	OCRRetries   int
	OCRTimeout   time.Duration
	CacheDSN     string
	EmptyRetries int

	// Rendering
	MinWidthPx  int
	MinHeightPx int
	MinDPI      int
	MaxDPI      int
	Grayscale   bool

	// Behaviour
	Strict       bool
	Overwrite    bool
	OnlyReviewed bool
	Debug        bool

	// Review server
	Host      string
	Port      int
	GinMode   string
	JWTSecret string
	JWTIssuer string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes

	// API keys, from MISTRAL_API_KEY / GEMINI_API_KEY
	MistralAPIKey string
	GeminiAPIKey  string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}
	ro := render.DefaultOptions()

	return &Config{
		Mode:            ModeBuild,
		PDFDirectory:    filepath.Join(currentDir, "exams"),
		OutputDirectory: filepath.Join(currentDir, "dataset"),
		OCRProvider:     ocr.ProviderMistral,
		BatchSize:       DefaultBatchSize,
		OCRRetries:      ocr.DefaultRetries,
		OCRTimeout:      DefaultOCRTimeout,
		EmptyRetries:    1,
		OCRLanguage:     "deu",
		MinWidthPx:      ro.MinWidthPx,
		MinHeightPx:     ro.MinHeightPx,
		MinDPI:          ro.MinDPI,
		MaxDPI:          ro.MaxDPI,
		Grayscale:       ro.Grayscale,
		Host:            DefaultHost,
		Port:            DefaultPort,
		GinMode:         DefaultGinMode,
		JWTIssuer:       "exam-dataset",
		Version:         "1.0.0",
		ServerName:      "exam-dataset",
		LogLevel:        DefaultLogLevel,
		MaxFileSize:     DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	populateConfigFromViper(cfg)
	cfg.expandPaths()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("out", cfg.OutputDirectory)
	viper.SetDefault("ocr-provider", cfg.OCRProvider)
	viper.SetDefault("ocr-language", cfg.OCRLanguage)
	viper.SetDefault("batch-size", cfg.BatchSize)
	viper.SetDefault("ocr-retries", cfg.OCRRetries)
	viper.SetDefault("ocr-timeout", cfg.OCRTimeout)
	viper.SetDefault("empty-retries", cfg.EmptyRetries)
	viper.SetDefault("min-width-px", cfg.MinWidthPx)
	viper.SetDefault("min-height-px", cfg.MinHeightPx)
	viper.SetDefault("min-dpi", cfg.MinDPI)
	viper.SetDefault("max-dpi", cfg.MaxDPI)
	viper.SetDefault("grayscale", cfg.Grayscale)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("gin-mode", cfg.GinMode)
	viper.SetDefault("jwt-issuer", cfg.JWTIssuer)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Mode: "+strings.Join(Modes, ", "))
	pflag.String("config", "", "Optional YAML config file")
	pflag.String("dir", cfg.PDFDirectory, "Directory containing exam PDFs and their mask sidecars")
	pflag.String("out", cfg.OutputDirectory, "Output directory for crops, dataset and answer keys")
	pflag.String("dataset", "", "Dataset JSONL path (default <out>/dataset.jsonl)")
	pflag.String("edits", "", "Edits overlay path (default <out>/edits.json)")
	pflag.String("output", "", "Output path for merge and dedupe")
	pflag.String("subset", "", "Corrected-only subset path for dedupe")
	pflag.String("answer-key", "", "Answer key file (JSON/YAML) or directory of per-year files")
	pflag.String("answer-pdf", "", "Central answer-key PDF (answerkeys mode)")
	pflag.IntSlice("years", nil, "Restrict answer-key output to these years")
	pflag.Bool("report", false, "Write an HTML spot-check report after a build")
	pflag.Bool("no-ocr", false, "Build without OCR; statements stay empty")
	pflag.String("ocr-provider", cfg.OCRProvider, "OCR engine: mistral, gemini or tesseract")
	pflag.String("ocr-model", "", "OCR model (engine default when empty)")
	pflag.String("ocr-language", cfg.OCRLanguage, "Tesseract language")
	pflag.Int("batch-size", cfg.BatchSize, "Concurrent OCR calls per wave")
	pflag.Int("ocr-retries", cfg.OCRRetries, "Retries per OCR call")
	pflag.Duration("ocr-timeout", cfg.OCRTimeout, "Timeout per OCR call")
	pflag.Int("empty-retries", cfg.EmptyRetries, "Serial retries for empty OCR results")
	pflag.String("cache-dsn", "", "Postgres DSN for the OCR cache (in-memory when empty)")
	pflag.Int("min-width-px", cfg.MinWidthPx, "Minimum crop width in pixels")
	pflag.Int("min-height-px", cfg.MinHeightPx, "Minimum crop height in pixels")
	pflag.Int("min-dpi", cfg.MinDPI, "Minimum render DPI")
	pflag.Int("max-dpi", cfg.MaxDPI, "Maximum render DPI")
	pflag.Bool("grayscale", cfg.Grayscale, "Render question crops in grayscale")
	pflag.Bool("strict", false, "Fail answer-key extraction on validation errors")
	pflag.Bool("overwrite", false, "Allow overwriting existing outputs")
	pflag.Bool("only-reviewed", false, "Merge only patches marked reviewed")
	pflag.Bool("debug", false, "Write answer-key debug overlays")
	pflag.String("host", cfg.Host, "Review server host address")
	pflag.Int("port", cfg.Port, "Review server port")
	pflag.String("gin-mode", cfg.GinMode, "Gin mode: debug, release or test")
	pflag.String("jwt-secret", "", "HS256 secret; enables bearer auth on the review server")
	pflag.String("jwt-issuer", cfg.JWTIssuer, "Expected JWT issuer")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
}

var flagKeys = []string{
	"mode", "config", "dir", "out", "dataset", "edits", "output", "subset",
	"answer-key", "answer-pdf", "years", "report",
	"no-ocr", "ocr-provider", "ocr-model", "ocr-language", "batch-size", "ocr-retries", "ocr-timeout", "empty-retries", "cache-dsn",
	"min-width-px", "min-height-px", "min-dpi", "max-dpi", "grayscale",
	"strict", "overwrite", "only-reviewed", "debug",
	"host", "port", "gin-mode", "jwt-secret", "jwt-issuer",
	"loglevel", "maxfilesize",
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, k := range flagKeys {
		_ = viper.BindPFlag(k, pflag.Lookup(k))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nexam-dataset - turn annotated exam PDFs into a question dataset\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --mode=seed --dir=exams                      # seed masks\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=answerkeys --answer-pdf=keys.pdf      # extract answer keys\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=build --answer-key=dataset/keys --report # build the dataset\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=review --port=8081                    # review server\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %s_<FLAG>  any flag, upper-cased with dashes as underscores\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  MISTRAL_API_KEY     Mistral OCR key\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY      Gemini key\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.ConfigFile = viper.GetString("config")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.OutputDirectory = viper.GetString("out")
	cfg.DatasetPath = viper.GetString("dataset")
	cfg.EditsPath = viper.GetString("edits")
	cfg.OutputPath = viper.GetString("output")
	cfg.SubsetPath = viper.GetString("subset")
	cfg.AnswerKeyPath = viper.GetString("answer-key")
	cfg.AnswerKeyPDF = viper.GetString("answer-pdf")
	cfg.Years = viper.GetIntSlice("years")
	cfg.Report = viper.GetBool("report")
	cfg.NoOCR = viper.GetBool("no-ocr")
	cfg.OCRProvider = viper.GetString("ocr-provider")
	cfg.OCRModel = viper.GetString("ocr-model")
	cfg.OCRLanguage = viper.GetString("ocr-language")
	cfg.BatchSize = viper.GetInt("batch-size")
	cfg.OCRRetries = viper.GetInt("ocr-retries")
	cfg.OCRTimeout = viper.GetDuration("ocr-timeout")
	cfg.EmptyRetries = viper.GetInt("empty-retries")
	cfg.CacheDSN = viper.GetString("cache-dsn")
	cfg.MinWidthPx = viper.GetInt("min-width-px")
	cfg.MinHeightPx = viper.GetInt("min-height-px")
	cfg.MinDPI = viper.GetInt("min-dpi")
	cfg.MaxDPI = viper.GetInt("max-dpi")
	cfg.Grayscale = viper.GetBool("grayscale")
	cfg.Strict = viper.GetBool("strict")
	cfg.Overwrite = viper.GetBool("overwrite")
	cfg.OnlyReviewed = viper.GetBool("only-reviewed")
	cfg.Debug = viper.GetBool("debug")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.GinMode = viper.GetString("gin-mode")
	cfg.JWTSecret = viper.GetString("jwt-secret")
	cfg.JWTIssuer = viper.GetString("jwt-issuer")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.MistralAPIKey = os.Getenv("MISTRAL_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
}

func (c *Config) expandPaths() {
	for _, p := range []*string{&c.PDFDirectory, &c.OutputDirectory} {
		if *p == "" {
			continue
		}
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !validMode(c.Mode) {
		return fmt.Errorf("mode must be one of: %s", strings.Join(Modes, ", "))
	}

	if c.Mode == ModeReview && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.needsPDFDirectory() && c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}
	if c.OutputDirectory == "" {
		return errors.New("output directory cannot be empty")
	}
	if c.Mode == ModeAnswerKeys && c.AnswerKeyPDF == "" {
		return errors.New("answerkeys mode requires --answer-pdf")
	}

	dirs := []string{c.OutputDirectory}
	if c.needsPDFDirectory() {
		dirs = append(dirs, c.PDFDirectory)
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		} else if err != nil {
			return fmt.Errorf("cannot access directory %s: %w", dir, err)
		}
	}

	if c.BatchSize < 1 {
		return errors.New("batch size must be at least 1")
	}
	if c.OCRRetries < 0 || c.EmptyRetries < 0 {
		return errors.New("retries cannot be negative")
	}
	if c.MinDPI < 1 || c.MaxDPI < c.MinDPI {
		return fmt.Errorf("invalid DPI range %d-%d", c.MinDPI, c.MaxDPI)
	}
	if c.MinWidthPx < 1 || c.MinHeightPx < 1 {
		return errors.New("minimum crop size must be positive")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validGinModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validGinModes[c.GinMode] {
		return fmt.Errorf("invalid gin mode: %s (must be one of: debug, release, test)", c.GinMode)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

func validMode(mode string) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

func (c *Config) needsPDFDirectory() bool {
	switch c.Mode {
	case ModeBuild, ModeSeed, ModeLabels, ModeMCP:
		return true
	}
	return false
}

// Address returns the review server address as host:port
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// IsMCPMode returns true when serving MCP over stdio.
func (c *Config) IsMCPMode() bool {
	return c.Mode == ModeMCP
}

// IsReviewMode returns true when running the review server.
func (c *Config) IsReviewMode() bool {
	return c.Mode == ModeReview
}

// IsLongRunning reports whether the mode serves until interrupted.
func (c *Config) IsLongRunning() bool {
	return c.Mode == ModeReview || c.Mode == ModeMCP
}

// Dataset returns the dataset JSONL path.
func (c *Config) Dataset() string {
	if c.DatasetPath != "" {
		return c.DatasetPath
	}
	return filepath.Join(c.OutputDirectory, "dataset.jsonl")
}

// Edits returns the edits overlay path.
func (c *Config) Edits() string {
	if c.EditsPath != "" {
		return c.EditsPath
	}
	return filepath.Join(c.OutputDirectory, "edits.json")
}

// CropsDir is where builds write crops.
func (c *Config) CropsDir() string {
	return filepath.Join(c.OutputDirectory, "crops")
}

// AnswerKeyDir is where answerkeys mode writes per-year files.
func (c *Config) AnswerKeyDir() string {
	return filepath.Join(c.OutputDirectory, "answer_keys")
}

// RenderOptions returns the crop size targets.
func (c *Config) RenderOptions() render.Options {
	return render.Options{
		MinWidthPx:  c.MinWidthPx,
		MinHeightPx: c.MinHeightPx,
		MinDPI:      c.MinDPI,
		MaxDPI:      c.MaxDPI,
		Grayscale:   c.Grayscale,
	}
}

// OCRConfig returns the engine settings with the provider's API key.
func (c *Config) OCRConfig() ocr.Config {
	key := c.MistralAPIKey
	if strings.EqualFold(c.OCRProvider, ocr.ProviderGemini) {
		key = c.GeminiAPIKey
	}
	return ocr.Config{
		Provider: c.OCRProvider,
		Model:    c.OCRModel,
		APIKey:   key,
		Retries:  c.OCRRetries,
		Timeout:  c.OCRTimeout,
		Language: c.OCRLanguage,
	}
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, PDFDirectory: %s, OutputDirectory: %s, OCR: %s, BatchSize: %d, LogLevel: %s}",
		c.Mode, c.PDFDirectory, c.OutputDirectory, c.OCRProvider, c.BatchSize, c.LogLevel)
}
