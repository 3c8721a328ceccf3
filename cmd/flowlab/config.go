package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all flowlab server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr  string `json:"listen_addr"`
	DBPath      string `json:"db_path"`
	LogLevel    string `json:"log_level"`
	LLMEndpoint string `json:"llm_endpoint"`
	LLMAPIKey   string `json:"llm_api_key"`
	LLMModel    string `json:"llm_model"`
	StepLimit   int    `json:"step_limit"`
	Scheduler   bool   `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4700",
		DBPath:     filepath.Join(flowlabDir(), "flowlab.db"),
		LogLevel:   "info",
		Scheduler:  true,
	}
}

func flowlabDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowlab"
	}
	return filepath.Join(home, ".flowlab")
}

func settingsPath() string {
	return filepath.Join(flowlabDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWLAB_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWLAB_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWLAB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWLAB_LLM_ENDPOINT"); v != "" {
		cfg.LLMEndpoint = v
	}
	if v := os.Getenv("FLOWLAB_LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("FLOWLAB_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("FLOWLAB_STEP_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StepLimit = n
		}
	}
	if v := os.Getenv("FLOWLAB_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}
