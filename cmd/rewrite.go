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
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luotian/rephrase/internal"
	"github.com/luotian/rephrase/internal/detector"
	"github.com/luotian/rephrase/internal/orchestrator"
	"github.com/luotian/rephrase/internal/rewriter"
	"github.com/luotian/rephrase/internal/rules"
	"github.com/luotian/rephrase/internal/store"
	"github.com/luotian/rephrase/internal/strategy"
)

var (
	inputFile  string
	outputFile string
	reportFile string

	taskName  string
	intensity int
	ruleLang  string

	terms          []string
	termsFile      string
	noDefaultTerms bool

	batchRunes       int
	contextSentences int
	workers          int
	seed             int64

	backendName string
	modelName   string
	baseURL     string
	apiKey      string
	callTimeout time.Duration
	maxRetries  int

	dbPath  string
	noCache bool
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Rewrite a document under term-preservation constraints",
	Long: `Rewrite a text file sentence by sentence, in parallel batches.

Tasks:
  dedup  paraphrase to reduce similarity-detector overlap
  deai   restructure to reduce AI-detector style signals

Intensity 1-2 uses deterministic rules only, 3-4 adds an LLM refinement
pass, and 5 rewrites every sentence with the LLM. Protected terms (from
--term, --terms-file, the glossary, and the built-in academic glossary)
are kept verbatim; results that drop one are rejected and retried.

Backends:
  ollama  local Ollama server (default)
  openai  any OpenAI-compatible chat endpoint (set --api-key)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		task := internal.Task(taskName)
		if !task.Valid() {
			return fmt.Errorf("unknown task %q (want dedup or deai)", taskName)
		}

		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		text := string(raw)

		logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

		// Stop cleanly on Ctrl-C: finished batches are kept.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lang := ruleLang
		if lang == "" || lang == "auto" {
			lang = detector.New().RuleLanguage(text)
			logger.Info("detected rule language", "lang", lang)
		}

		var db *store.Store
		if !noCache && dbPath != "" {
			db, err = store.New(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
		}

		allTerms, err := collectTerms(ctx, db, lang)
		if err != nil {
			return err
		}

		strat, err := strategy.Select(task, intensity)
		if err != nil {
			return err
		}
		var backend rewriter.Rewriter
		if strat.HasLLM() {
			backend, err = buildBackend()
			if err != nil {
				return err
			}
		}

		var cache orchestrator.Cache
		if db != nil {
			cache = store.CacheAdapter{Store: db, Ctx: ctx}
		}

		orch := orchestrator.New(backend, orchestrator.Config{
			BatchRunes:       batchRunes,
			ContextSentences: contextSentences,
			Workers:          workers,
			CallTimeout:      callTimeout,
			MaxAttempts:      maxRetries,
			Seed:             seed,
			RuleLang:         lang,
			Cache:            cache,
			Logger:           logger,
			Progress: func(done, total int) {
				logger.Info("progress", "batches", fmt.Sprintf("%d/%d", done, total))
			},
		})

		req := internal.RewriteRequest{
			ID:         uuid.New().String(),
			SourceText: text,
			Task:       task,
			Intensity:  intensity,
			Terms:      allTerms,
			Timestamp:  time.Now(),
		}

		res, err := orch.Run(ctx, req)
		if err != nil {
			return err
		}

		if db != nil {
			_ = db.SaveRequest(ctx, req, lang)
			for _, br := range res.Batches {
				_ = db.SaveBatchResult(ctx, req.ID, br.Index, string(br.Status), br.RewrittenText, br.Similarity, br.Attempts, br.Warning)
			}
			_ = db.SaveFinalRewrite(ctx, req.ID, res.RewrittenText, string(res.Status), res.Similarity, res.AIScoreBefore, res.AIScoreAfter)
		}

		if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(outputFile, []byte(res.RewrittenText), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}

		if reportFile != "" {
			if err := os.WriteFile(reportFile, []byte(orchestrator.BuildReport(res)), 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
		}

		fmt.Printf("Rewrote %s (%s, intensity %d): %s\n", inputFile, task, intensity, res.Status)
		fmt.Printf("Similarity to source: %.3f\n", res.Similarity)
		if task == internal.TaskDeai {
			fmt.Printf("AI-style score: %.1f → %.1f\n", res.AIScoreBefore, res.AIScoreAfter)
		}
		return nil
	},
}

// collectTerms merges the built-in academic glossary, the stored glossary for
// the rule language, and the terms given on the command line.
func collectTerms(ctx context.Context, db *store.Store, lang string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if !noDefaultTerms {
		for _, t := range rules.DefaultPreserveTerms {
			add(t)
		}
	}
	if db != nil {
		stored, err := db.GetGlossaryTerms(ctx, lang)
		if err != nil {
			return nil, fmt.Errorf("failed to load glossary: %w", err)
		}
		for _, t := range stored {
			add(t)
		}
	}
	for _, t := range terms {
		add(t)
	}
	if termsFile != "" {
		f, err := os.Open(termsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read terms file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			add(sc.Text())
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("failed to read terms file: %w", err)
		}
	}
	return out, nil
}

// buildBackend constructs the model backend from flags, with viper filling
// anything the flags left empty (config file or REPHRASE_* environment).
func buildBackend() (rewriter.Rewriter, error) {
	key := apiKey
	if key == "" {
		key = viper.GetString("api_key")
	}
	base := baseURL
	if base == "" {
		base = viper.GetString("base_url")
	}
	model := modelName
	if model == "" {
		model = viper.GetString("model")
	}

	cfg := rewriter.Config{
		Model:   model,
		BaseURL: base,
		APIKey:  key,
		Timeout: callTimeout,
	}
	switch backendName {
	case "ollama":
		return rewriter.NewOllamaRewriter(cfg), nil
	case "openai":
		if key == "" {
			return nil, fmt.Errorf("the openai backend needs --api-key or REPHRASE_API_KEY")
		}
		return rewriter.NewOpenAIRewriter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want ollama or openai)", backendName)
	}
}

func init() {
	rootCmd.AddCommand(rewriteCmd)

	rewriteCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file to rewrite (required)")
	rewriteCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (required)")
	rewriteCmd.Flags().StringVar(&reportFile, "report", "", "Write a markdown rewrite report to this path")

	rewriteCmd.Flags().StringVarP(&taskName, "task", "t", "dedup", "Rewrite task: dedup or deai")
	rewriteCmd.Flags().IntVarP(&intensity, "intensity", "n", 3, "Rewrite strength 1-5")
	rewriteCmd.Flags().StringVar(&ruleLang, "lang", "auto", "Rule language: auto, zh, or en")

	rewriteCmd.Flags().StringSliceVar(&terms, "term", nil, "Protected term kept verbatim (repeatable)")
	rewriteCmd.Flags().StringVar(&termsFile, "terms-file", "", "File with one protected term per line")
	rewriteCmd.Flags().BoolVar(&noDefaultTerms, "no-default-terms", false, "Skip the built-in academic term glossary")

	rewriteCmd.Flags().IntVar(&batchRunes, "batch-runes", 0, "Rune budget per batch (0 = 2000)")
	rewriteCmd.Flags().IntVar(&contextSentences, "context-sentences", 0, "Trailing sentences carried between batches (0 = 2)")
	rewriteCmd.Flags().IntVar(&workers, "workers", 4, "Concurrent batch workers")
	rewriteCmd.Flags().Int64Var(&seed, "seed", 0, "Rule candidate rotation seed (same seed, same output)")

	rewriteCmd.Flags().StringVar(&backendName, "backend", "ollama", "Model backend: ollama or openai")
	rewriteCmd.Flags().StringVar(&modelName, "model", "", "Model name (backend default if empty)")
	rewriteCmd.Flags().StringVar(&baseURL, "base-url", "", "Backend base URL")
	rewriteCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the openai backend")
	rewriteCmd.Flags().DurationVar(&callTimeout, "timeout", 120*time.Second, "Timeout per model call")
	rewriteCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Total attempts per model call including the first (1 = no retries)")

	rewriteCmd.Flags().StringVar(&dbPath, "db", "./data/rephrase.db", "Database path for the rewrite memory")
	rewriteCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the rewrite memory cache")

	rewriteCmd.MarkFlagRequired("input")
	rewriteCmd.MarkFlagRequired("output")
}
