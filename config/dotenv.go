// Copyright 2025 Gurubase, Inc.
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

package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from .env files.
//
// Search order (first found wins):
//  1. Explicit paths if provided
//  2. .env in current directory
//  3. .env in home directory (~/.env)
//
// This function is idempotent and safe to call multiple times.
// Existing environment variables are NOT overwritten.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if path != "" {
			if err := loadIfExists(path); err != nil {
				return err
			}
		}
	}

	if err := loadIfExists(".env"); err != nil {
		return err
	}

	if home, err := os.UserHomeDir(); err == nil {
		if err := loadIfExists(filepath.Join(home, ".env")); err != nil {
			return err
		}
	}

	return nil
}

// loadIfExists loads a .env file if it exists.
// Does NOT overwrite existing environment variables.
func loadIfExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		// Log but don't fail - .env is optional
		slog.Debug("Failed to load .env file", "path", path, "error", err)
		return nil
	}

	slog.Debug("Loaded environment from .env", "path", path)
	return nil
}

// ExpandEnv fills credential fields from the environment when the config
// file leaves them empty. The variable names match the product's deployment
// manifests.
func (c *Config) ExpandEnv() {
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = os.Getenv("GURU_EMBEDDER_API_KEY")
	}
	if c.VectorStore.APIKey == "" {
		c.VectorStore.APIKey = os.Getenv("GURU_VECTOR_STORE_API_KEY")
	}
	if c.Reranker.APIKey == "" {
		c.Reranker.APIKey = os.Getenv("GURU_RERANKER_API_KEY")
	}
	if c.Judge.APIKey == "" {
		c.Judge.APIKey = os.Getenv("GURU_JUDGE_API_KEY")
	}
}
