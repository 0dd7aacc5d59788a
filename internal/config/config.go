// Copyright 2025 PageFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and stores the pagefs volume settings used by the
// CLI. The library itself takes explicit arguments; this file only names
// the host root and the backing file set of a volume.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the settings file created by `pagefs init`.
const DefaultFileName = "pagefs.yaml"

// Config names a pagefs volume: its host root directory and the backing
// files packed into it. The on-disk page format is fixed at build time;
// only the file set is configurable.
type Config struct {
	Root         string   `yaml:"root"`
	BackingFiles []string `yaml:"backing_files"`
}

// Default returns the conventional five-file volume rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Root:         dir,
		BackingFiles: []string{"1.vfs", "2.vfs", "3.vfs", "4.vfs", "5.vfs"},
	}
}

// Load reads a settings file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.BackingFiles) == 0 {
		return nil, fmt.Errorf("config %s: no backing files listed", path)
	}
	if cfg.Root == "" {
		cfg.Root = filepath.Dir(path)
	}
	return &cfg, nil
}

// Save writes the settings file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
