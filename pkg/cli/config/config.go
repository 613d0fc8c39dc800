/* Copyright 2025 Jotline Authors
 *
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

package config

import (
	"fmt"
	"os"

	"github.com/jotline/jotline/pkg/cli/consts"
	"github.com/jotline/jotline/pkg/cli/context"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Defaults for the retry behavior of the operation queue. The backoff is
// exponential from the base and is capped; past maxRetries an operation is
// terminal and requires user action.
const (
	DefaultMaxRetries            = 5
	DefaultBackoffBaseSeconds    = 2
	DefaultBackoffMaxSeconds     = 300
	DefaultHistoryLimit          = 500
	DefaultAttemptTimeoutSeconds = 30
)

// Config holds jotline configuration
type Config struct {
	Editor                string `yaml:"editor"`
	APIEndpoint           string `yaml:"apiEndpoint"`
	EnableUpgradeCheck    bool   `yaml:"enableUpgradeCheck"`
	MaxRetries            int    `yaml:"maxRetries"`
	BackoffBaseSeconds    int    `yaml:"backoffBaseSeconds"`
	BackoffMaxSeconds     int    `yaml:"backoffMaxSeconds"`
	HistoryLimit          int    `yaml:"historyLimit"`
	AttemptTimeoutSeconds int    `yaml:"attemptTimeoutSeconds"`
}

// ApplyDefaults fills in zero-valued tunables with their defaults
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffBaseSeconds == 0 {
		c.BackoffBaseSeconds = DefaultBackoffBaseSeconds
	}
	if c.BackoffMaxSeconds == 0 {
		c.BackoffMaxSeconds = DefaultBackoffMaxSeconds
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.AttemptTimeoutSeconds == 0 {
		c.AttemptTimeoutSeconds = DefaultAttemptTimeoutSeconds
	}
}

// GetPath returns the path to the jotline config file
func GetPath(ctx context.JotCtx) string {
	return fmt.Sprintf("%s/%s/%s", ctx.Paths.Config, consts.JotlineDirName, consts.ConfigFilename)
}

// Read reads the config file
func Read(ctx context.JotCtx) (Config, error) {
	var ret Config

	configPath := GetPath(ctx)
	b, err := os.ReadFile(configPath)
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	err = yaml.Unmarshal(b, &ret)
	if err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	ret.ApplyDefaults()

	return ret, nil
}

// Write writes the config to the config file
func Write(ctx context.JotCtx, cf Config) error {
	path := GetPath(ctx)

	b, err := yaml.Marshal(cf)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}
