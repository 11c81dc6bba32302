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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luotian/rephrase/internal/detector"
	"github.com/luotian/rephrase/internal/rules"
	"github.com/luotian/rephrase/internal/similarity"
)

var scoreLang string

var scoreCmd = &cobra.Command{
	Use:   "score <file> [file2]",
	Short: "Score text without rewriting it",
	Long: `With one file, estimate how strongly the text matches AI-writing style
markers (0-100, higher = more machine-like).

With two files, also report the similarity between them: character-level
edit similarity, word-overlap similarity, and the composite score the
rewriter uses to accept or reject a rewrite.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		first, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		lang := scoreLang
		if lang == "" || lang == "auto" {
			lang = detector.New().RuleLanguage(string(first))
		}
		table := rules.ForLanguage(lang)

		fmt.Printf("Language: %s\n", lang)
		fmt.Printf("AI-style score (%s): %.1f\n", args[0], table.EstimateAIScore(string(first)))

		if len(args) == 2 {
			second, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			a, b := string(first), string(second)
			fmt.Printf("AI-style score (%s): %.1f\n", args[1], table.EstimateAIScore(b))
			fmt.Printf("Character similarity: %.3f\n", similarity.Char(a, b))
			fmt.Printf("Word similarity:      %.3f\n", similarity.Word(a, b))
			fmt.Printf("Composite similarity: %.3f\n", similarity.Score(a, b))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().StringVar(&scoreLang, "lang", "auto", "Rule language: auto, zh, or en")
}
