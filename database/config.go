/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	globalConfig   *Config
	globalConfigMu sync.RWMutex
)

// LoadConfig reads a YAML configuration file on top of DefaultConfig and
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration bytes on top of DefaultConfig and
// applies environment overrides.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	overrideFromEnv(cfg)
	if cfg.Repository.PerPage < 1 {
		cfg.Repository.PerPage = DefaultPerPage
	}
	return cfg, nil
}

// SetConfig installs cfg as the process-wide configuration.
func SetConfig(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// GetConfig returns the process-wide configuration, or nil if none was set.
func GetConfig() *Config {
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// PerPage returns the configured repository page size, falling back to
// DefaultPerPage.
func PerPage() int {
	if cfg := GetConfig(); cfg != nil && cfg.Repository.PerPage > 0 {
		return cfg.Repository.PerPage
	}
	return DefaultPerPage
}

// overrideFromEnv overrides configuration values from environment variables.
func overrideFromEnv(cfg *Config) {
	conn := &cfg.ConnectionConfig
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		conn.Type = dbType
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		conn.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			conn.Port = p
		}
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		conn.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		conn.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		conn.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		conn.SSLMode = sslmode
	}
	if maxIdle := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdle != "" {
		if val, err := strconv.Atoi(maxIdle); err == nil {
			conn.MaxIdleConns = val
		}
	}
	if maxOpen := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpen != "" {
		if val, err := strconv.Atoi(maxOpen); err == nil {
			conn.MaxOpenConns = val
		}
	}
	if maxLifetime := os.Getenv("DB_CONN_MAX_LIFETIME"); maxLifetime != "" {
		if val, err := strconv.Atoi(maxLifetime); err == nil {
			conn.ConnMaxLifetime = time.Duration(val) * time.Second
		}
	}
	if enableQueryLog := os.Getenv("DB_ENABLE_QUERY_LOG"); enableQueryLog != "" {
		conn.EnableQueryLog = enableQueryLog == "true"
	}
	if perPage := os.Getenv("REPOSITORY_PER_PAGE"); perPage != "" {
		if val, err := strconv.Atoi(perPage); err == nil {
			cfg.Repository.PerPage = val
		}
	}
}
