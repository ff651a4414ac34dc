package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string `yaml:"type"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	Dimension   int    `yaml:"dimension,omitempty"`
}

// GeneratorConfig selects and configures the language model.
type GeneratorConfig struct {
	Type         string `yaml:"type"`
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url,omitempty"`
	APIKeyEnv    string `yaml:"api_key_env,omitempty"`
	MaxNewTokens int    `yaml:"max_new_tokens"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SummarizerConfig selects and configures the corpus summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir     string            `yaml:"data_dir"`
	IndexDir    string            `yaml:"index_dir"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from an explicit path. A missing file is an error;
// only LoadDefault falls back to defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/documind/config.yaml.
// If neither exists, it writes defaults to ~/.config/documind/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports settings that would make the pipeline misbehave.
func (c *AppConfig) Validate() error {
	if c.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be positive")
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker.overlap must be in [0, %d)", c.Chunker.Size)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant == nil {
		return fmt.Errorf("vector_store.qdrant section missing")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "documind", "config.yaml"), nil
}

// Default returns the configuration the application ships with.
func Default() *AppConfig {
	cfg := &AppConfig{
		DataDir:     "./data",
		IndexDir:    "./chroma_db",
		Chunker:     ChunkerConfig{Size: 1000, Overlap: 200},
		Retrieval:   RetrievalConfig{TopK: 2},
		Embedder:    EmbedderConfig{Type: "huggingface"},
		Generator:   GeneratorConfig{Type: "huggingface"},
		VectorStore: VectorStoreConfig{Type: "sqlite"},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Logging:     LoggingConfig{Level: "info", Format: "console"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.IndexDir == "" {
		cfg.IndexDir = "./chroma_db"
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = 200
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 2
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}

	e := &cfg.Embedder
	if e.Type == "" {
		e.Type = "huggingface"
	}
	if e.TimeoutSecs == 0 {
		e.TimeoutSecs = 60
	}
	if e.BatchSize == 0 {
		e.BatchSize = 32
	}
	switch e.Type {
	case "huggingface":
		setDefault(&e.BaseURL, "https://api-inference.huggingface.co")
		setDefault(&e.APIKeyEnv, "HF_TOKEN")
		setDefault(&e.Model, "sentence-transformers/all-MiniLM-L6-v2")
	case "ollama":
		setDefault(&e.BaseURL, "http://localhost:11434")
		setDefault(&e.Model, "all-minilm")
	case "openai":
		setDefault(&e.BaseURL, "https://api.openai.com/v1")
		setDefault(&e.APIKeyEnv, "OPENAI_API_KEY")
		setDefault(&e.Model, "text-embedding-3-small")
	case "hashing":
		if e.Dimension == 0 {
			e.Dimension = 384
		}
		setDefault(&e.Model, fmt.Sprintf("hashing-%d", e.Dimension))
	}

	g := &cfg.Generator
	if g.Type == "" {
		g.Type = "huggingface"
	}
	if g.MaxNewTokens == 0 {
		g.MaxNewTokens = 200
	}
	if g.TimeoutSecs == 0 {
		g.TimeoutSecs = 120
	}
	switch g.Type {
	case "huggingface":
		setDefault(&g.BaseURL, "https://api-inference.huggingface.co")
		setDefault(&g.APIKeyEnv, "HF_TOKEN")
		setDefault(&g.Model, "google/flan-t5-base")
	case "ollama":
		setDefault(&g.BaseURL, "http://localhost:11434")
		setDefault(&g.Model, "llama3.2")
	case "extractive":
		setDefault(&g.Model, "extractive")
	}

	if q := cfg.VectorStore.Qdrant; q != nil {
		setDefault(&q.URL, "http://localhost:6333")
		setDefault(&q.Collection, "documind")
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
