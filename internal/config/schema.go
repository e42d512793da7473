package config

import "time"

// Config holds snapgloss startup configuration, loaded from config.yaml with
// environment overrides. Runtime-tunable knobs live in the DefraDB Config
// collection instead (see Settings).
type Config struct {
	Server    ServerCfg    `mapstructure:"server" yaml:"server"`
	OCR       OCRCfg       `mapstructure:"ocr" yaml:"ocr"`
	Annotator AnnotatorCfg `mapstructure:"annotator" yaml:"annotator"`
	Pipeline  PipelineCfg  `mapstructure:"pipeline" yaml:"pipeline"`
	Defra     DefraCfg     `mapstructure:"defra" yaml:"defra"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// OCRCfg configures the recognition provider.
type OCRCfg struct {
	Provider          string `mapstructure:"provider" yaml:"provider"`                       // "paddleocr"
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`                       // serving endpoint
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"` // token bucket budget
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// AnnotatorCfg configures the pinyin/translation provider.
type AnnotatorCfg struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // "openai"
	Model    string `mapstructure:"model" yaml:"model"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
}

// ResolveAPIKey returns the API key with ${ENV_VAR} references expanded.
func (a AnnotatorCfg) ResolveAPIKey() string {
	return ResolveEnvVars(a.APIKey)
}

// PipelineCfg holds ingest phase timeouts. Concurrency and batch sizing are
// runtime settings, not file config.
type PipelineCfg struct {
	RecognizeTimeoutSeconds int `mapstructure:"recognize_timeout_seconds" yaml:"recognize_timeout_seconds"`
	AnnotateTimeoutSeconds  int `mapstructure:"annotate_timeout_seconds" yaml:"annotate_timeout_seconds"`
}

// RecognizeTimeout returns the recognition phase budget.
func (p PipelineCfg) RecognizeTimeout() time.Duration {
	return time.Duration(p.RecognizeTimeoutSeconds) * time.Second
}

// AnnotateTimeout returns the annotation phase budget.
func (p PipelineCfg) AnnotateTimeout() time.Duration {
	return time.Duration(p.AnnotateTimeoutSeconds) * time.Second
}

// DefraCfg holds DefraDB container configuration.
type DefraCfg struct {
	// ContainerName overrides the home-path-derived container name.
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: sourcenetwork/defradb:latest)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 9181)
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		OCR: OCRCfg{
			Provider:          "paddleocr",
			BaseURL:           "http://localhost:8868",
			RequestsPerMinute: 120,
			TimeoutSeconds:    60,
			MaxRetries:        3,
		},
		Annotator: AnnotatorCfg{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			APIKey:   "${OPENAI_API_KEY}",
		},
		Pipeline: PipelineCfg{
			RecognizeTimeoutSeconds: 120,
			AnnotateTimeoutSeconds:  300,
		},
		Defra: DefraCfg{
			Image: "sourcenetwork/defradb:latest",
			Port:  "9181",
		},
	}
}
