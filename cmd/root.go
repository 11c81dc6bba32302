/*
Copyright © 2025 Luo Tian <luotian.dev@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "rephrase",
	Short: "Constraint-preserving academic text rewriter",
	Long: `A CLI tool that rewrites academic text under hard constraints: protected
terminology stays verbatim while wording and sentence structure change.

Two rewrite tasks are supported:
  dedup  reduce textual overlap reported by similarity detectors
  deai   reduce stylistic signals picked up by AI-text detectors

Use "rephrase rewrite --help" for rewriting options.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig loads rephrase.yaml from the working directory or
// $HOME/.config/rephrase, then lets REPHRASE_* environment variables
// override it. Flags still take precedence over both.
func initConfig() {
	viper.SetConfigName("rephrase")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "rephrase"))
	}
	viper.SetEnvPrefix("REPHRASE")
	viper.AutomaticEnv()
	// Missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}
