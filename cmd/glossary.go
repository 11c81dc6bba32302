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
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/luotian/rephrase/internal/store"
)

var glossaryDBPath string

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage protected terms",
	Long: `Add, list, and delete protected terms.

Protected terms are kept verbatim in every rewrite — useful for method
names, estimator names, and other domain vocabulary that must survive
paraphrasing. Terms are stored per rule language (zh or en) and merged
into every rewrite request for that language.`,
}

var glossaryListLang string

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all protected terms",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		// Pass an empty string to list everything; --lang narrows the filter.
		entries, err := db.ListGlossaryTerms(context.Background(), glossaryListLang)
		if err != nil {
			return fmt.Errorf("failed to list glossary: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLANG\tTERM")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Lang, e.Term)
		}
		return w.Flush()
	},
}

var glossaryAddLang string

var glossaryAddCmd = &cobra.Command{
	Use:   "add <term>...",
	Short: "Add protected terms",
	Long: `Add one or more protected terms for a rule language.

Example:
  rephrase glossary add "双重差分" "工具变量" --lang zh`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossaryAddLang != "zh" && glossaryAddLang != "en" {
			return fmt.Errorf("--lang must be zh or en")
		}

		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		for _, term := range args {
			if err := db.AddGlossaryTerm(context.Background(), glossaryAddLang, term); err != nil {
				return fmt.Errorf("failed to add glossary term %q: %w", term, err)
			}
			fmt.Printf("Added: [%s] %q\n", glossaryAddLang, term)
		}
		return nil
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a protected term by ID",
	Long: `Delete a glossary entry by its ID (shown in "rephrase glossary list").

Example:
  rephrase glossary delete gl_1234567890123456789`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.DeleteGlossaryTerm(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete glossary entry: %w", err)
		}
		fmt.Printf("Deleted glossary entry: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryCmd.PersistentFlags().StringVar(&glossaryDBPath, "db", "./data/rephrase.db", "Database path")

	glossaryListCmd.Flags().StringVar(&glossaryListLang, "lang", "", "Filter by rule language (zh or en)")
	glossaryAddCmd.Flags().StringVar(&glossaryAddLang, "lang", "zh", "Rule language for the terms (zh or en)")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
}
