// Package orchestrator drives the whole-document rewrite pipeline: segment
// the source into sentences, group them into batches, run the rule engine and
// any model stages the strategy calls for on each batch concurrently, then
// reassemble the results in source order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/luotian/rephrase/internal"
	"github.com/luotian/rephrase/internal/detector"
	"github.com/luotian/rephrase/internal/protect"
	"github.com/luotian/rephrase/internal/rewriter"
	"github.com/luotian/rephrase/internal/rules"
	"github.com/luotian/rephrase/internal/segment"
	"github.com/luotian/rephrase/internal/similarity"
	"github.com/luotian/rephrase/internal/strategy"
)

// Cache stores accepted batch rewrites keyed by exact source text, task, and
// intensity. Implementations are expected to be safe for concurrent use.
type Cache interface {
	GetRewrite(sourceText string, task internal.Task, intensity int) (string, bool, error)
	SaveRewrite(sourceText string, task internal.Task, intensity int, rewritten string) error
}

// Config controls batching, concurrency, and retry behavior.
type Config struct {
	BatchRunes       int           // rune budget per batch, 0 = segment default
	ContextSentences int           // trailing sentences carried between batches
	Workers          int           // concurrent batch workers, 0 = 4
	CallTimeout      time.Duration // per model call, 0 = rewriter default
	MaxAttempts      int           // attempts per model call, 0 = 3
	RetryDelay       time.Duration // base backoff delay, 0 = 1s
	Seed             int64         // rule engine candidate rotation seed
	RuleLang         string        // "zh", "en", or "" / "auto" to detect
	Cache            Cache         // nil disables the rewrite memory
	Logger           *log.Logger   // nil uses the package default
	Progress         func(done, total int)
}

// BatchStatus classifies the outcome of one batch.
type BatchStatus string

const (
	// BatchAccepted means the batch passed validation.
	BatchAccepted BatchStatus = "accepted"
	// BatchAcceptedWithWarning means the model stages failed or were
	// rejected and the rule-engine output was used instead.
	BatchAcceptedWithWarning BatchStatus = "accepted-with-warning"
	// BatchCancelled means the run was cancelled before the batch finished;
	// its text is the unmodified source.
	BatchCancelled BatchStatus = "cancelled"
)

// BatchResult is the outcome of one batch, positioned by Index.
type BatchResult struct {
	Index         int
	SourceText    string
	RewrittenText string
	Status        BatchStatus
	Similarity    float64
	AppliedRules  []string
	Attempts      int
	FromCache     bool
	Warning       string
}

// DocumentStatus classifies a whole run.
type DocumentStatus string

const (
	DocCompleted             DocumentStatus = "completed"
	DocCompletedWithWarnings DocumentStatus = "completed-with-warnings"
	DocPartiallyCancelled    DocumentStatus = "partially-cancelled"
)

// ErrEmptyDocument is returned when the source text contains no sentences.
var ErrEmptyDocument = errors.New("document contains no sentences")

// DocumentResult is the reassembled outcome of a run.
type DocumentResult struct {
	RequestID     string
	Task          internal.Task
	Intensity     int
	Lang          string
	Strategy      string
	RewrittenText string
	Batches       []BatchResult
	Status        DocumentStatus
	Similarity    float64
	AIScoreBefore float64 // deai only
	AIScoreAfter  float64 // deai only
	Duration      time.Duration
}

// Orchestrator runs rewrite requests. The model backend may be nil when only
// rule-based strategies will be used.
type Orchestrator struct {
	backend  rewriter.Rewriter
	detector *detector.Detector
	config   Config
	logger   *log.Logger
}

// New creates an orchestrator, filling config defaults.
func New(backend rewriter.Rewriter, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = rewriter.DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		backend:  backend,
		detector: detector.New(),
		config:   cfg,
		logger:   logger,
	}
}

// Run rewrites one request. It returns an error only for invalid input; model
// failures degrade to rule-engine output, and cancellation yields a partial
// result with untouched batches left as source text.
func (o *Orchestrator) Run(ctx context.Context, req internal.RewriteRequest) (*DocumentResult, error) {
	start := time.Now()

	strat, err := strategy.Select(req.Task, req.Intensity)
	if err != nil {
		return nil, err
	}
	if strat.HasLLM() && o.backend == nil {
		return nil, fmt.Errorf("strategy %q needs a model backend but none is configured", strat.Name)
	}

	lang := o.config.RuleLang
	if lang == "" || lang == "auto" {
		lang = o.detector.RuleLanguage(req.SourceText)
	}
	table := rules.ForLanguage(lang)
	engine := rules.NewEngine(table, o.config.Seed)

	res := &DocumentResult{
		RequestID: req.ID,
		Task:      req.Task,
		Intensity: req.Intensity,
		Lang:      lang,
		Strategy:  strat.Name,
		Status:    DocCompleted,
	}

	doc := segment.Split(req.SourceText)
	if len(doc.Sentences) == 0 {
		return nil, ErrEmptyDocument
	}

	batches := segment.Batches(doc.Sentences, o.config.BatchRunes)
	results := make([]BatchResult, len(batches))

	o.logger.Info("starting rewrite",
		"request", req.ID, "task", req.Task, "intensity", req.Intensity,
		"lang", lang, "strategy", strat.Name, "batches", len(batches))

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i := range batches {
		i := i
		g.Go(func() error {
			results[i] = o.processBatch(gctx, engine, strat, req, doc, batches, i)
			if p := o.config.Progress; p != nil {
				p(int(done.Add(1)), len(batches))
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	var b strings.Builder
	cancelled, warned := false, false
	for i, batch := range batches {
		_, trail := segment.BatchText(doc.Source, batch)
		b.WriteString(results[i].RewrittenText)
		b.WriteString(trail)
		switch results[i].Status {
		case BatchCancelled:
			cancelled = true
		case BatchAcceptedWithWarning:
			warned = true
		}
	}
	if cancelled {
		res.Status = DocPartiallyCancelled
	} else if warned {
		res.Status = DocCompletedWithWarnings
	}
	res.Batches = results
	res.RewrittenText = doc.Lead + b.String()
	res.Similarity = similarity.Score(res.RewrittenText, req.SourceText)
	if req.Task == internal.TaskDeai {
		res.AIScoreBefore = table.EstimateAIScore(req.SourceText)
		res.AIScoreAfter = table.EstimateAIScore(res.RewrittenText)
	}
	res.Duration = time.Since(start)

	o.logger.Info("rewrite finished",
		"request", req.ID, "status", res.Status,
		"similarity", fmt.Sprintf("%.3f", res.Similarity),
		"duration", res.Duration)
	return res, nil
}

func (o *Orchestrator) processBatch(ctx context.Context, engine *rules.Engine, strat strategy.Strategy, req internal.RewriteRequest, doc segment.Document, batches [][]segment.Sentence, i int) BatchResult {
	body, _ := segment.BatchText(doc.Source, batches[i])
	br := BatchResult{Index: i, SourceText: body}

	if ctx.Err() != nil {
		br.Status = BatchCancelled
		br.RewrittenText = body
		br.Similarity = 1.0
		return br
	}

	if o.config.Cache != nil {
		cached, ok, err := o.config.Cache.GetRewrite(body, req.Task, req.Intensity)
		if err != nil {
			o.logger.Warn("cache lookup failed", "batch", i, "error", err)
		} else if ok {
			br.RewrittenText = cached
			br.FromCache = true
			br.Status = BatchAccepted
			br.Similarity = similarity.Score(cached, body)
			return br
		}
	}

	// The rule pass always runs: it is the output for rule-only strategies
	// and the fallback when model stages fail.
	ruleOut, applied := o.rulePass(engine, batches[i], req)
	br.AppliedRules = applied
	out := ruleOut

	if strat.HasLLM() {
		ctxText := ""
		if i > 0 {
			// Context comes from the previous batch's SOURCE text so
			// workers never wait on each other.
			ctxText = segment.TrailingContext(batches[i-1], o.config.ContextSentences, 0)
		}
		llmOut, attempts, warn := o.llmPass(ctx, engine, strat, req, body, ruleOut, batches[i], ctxText)
		br.Attempts = attempts
		if warn != "" {
			br.Warning = warn
			br.Status = BatchAcceptedWithWarning
			o.logger.Warn("batch degraded to rule output", "batch", i, "reason", warn)
		}
		if llmOut != "" {
			out = llmOut
		}
	}

	if ctx.Err() != nil {
		br.Status = BatchCancelled
		br.Warning = ""
		br.AppliedRules = nil
		br.RewrittenText = body
		br.Similarity = 1.0
		return br
	}

	br.RewrittenText = out
	br.Similarity = similarity.Score(out, body)
	if br.Status == "" {
		br.Status = BatchAccepted
	}

	if o.config.Cache != nil && br.Status == BatchAccepted {
		if err := o.config.Cache.SaveRewrite(body, req.Task, req.Intensity, out); err != nil {
			o.logger.Warn("cache save failed", "batch", i, "error", err)
		}
	}
	return br
}

// rulePass rewrites each sentence of the batch with the rule engine and
// reassembles them with their original whitespace.
func (o *Orchestrator) rulePass(engine *rules.Engine, batch []segment.Sentence, req internal.RewriteRequest) (string, []string) {
	var b strings.Builder
	var applied []string
	for j, s := range batch {
		out, ids := engine.Rewrite(s.Text, req.Task, req.Intensity, req.Terms)
		b.WriteString(out)
		if j < len(batch)-1 {
			b.WriteString(s.Trail)
		}
		applied = append(applied, ids...)
	}
	return b.String(), applied
}

// llmPass runs the model stages for one batch. It returns the accepted model
// output (empty when the batch must fall back to rule output), the number of
// calls made, and a warning describing any degradation.
func (o *Orchestrator) llmPass(ctx context.Context, engine *rules.Engine, strat strategy.Strategy, req internal.RewriteRequest, body, ruleOut string, batch []segment.Sentence, ctxText string) (string, int, string) {
	deep := false
	for _, st := range strat.Stages {
		if st == strategy.StageLLMPerSentence {
			deep = true
		}
	}
	if deep {
		return o.perSentencePass(ctx, engine, req, batch, ctxText)
	}

	attempts := 0
	rreq := rewriter.Request{
		Text:      ruleOut,
		Task:      req.Task,
		Intensity: req.Intensity,
		Terms:     req.Terms,
		Context:   ctxText,
	}

	out, n, err := o.callWithRetry(ctx, rreq)
	attempts += n
	if err != nil {
		return "", attempts, fmt.Sprintf("model call failed: %v", err)
	}

	// One intensified re-issue covers both rejection causes: protected
	// terms lost, or the result staying too close to the source.
	if missing := protect.Missing(body, out, req.Terms); len(missing) > 0 {
		rreq.Intensified = true
		retry, n, err := o.callWithRetry(ctx, rreq)
		attempts += n
		if err == nil && len(protect.Missing(body, retry, req.Terms)) == 0 {
			out = retry
		} else {
			return "", attempts, fmt.Sprintf("model dropped protected terms: %s", strings.Join(missing, ", "))
		}
	} else if similarity.Score(out, body) > strategy.MaxSimilarity(req.Intensity) {
		rreq.Intensified = true
		retry, n, err := o.callWithRetry(ctx, rreq)
		attempts += n
		if err == nil && len(protect.Missing(body, retry, req.Terms)) == 0 &&
			similarity.Score(retry, body) < similarity.Score(out, body) {
			out = retry
		}
	}

	// A result still above the intensity ceiling is rejected; the rule
	// output stands in its place.
	if sim := similarity.Score(out, body); sim > strategy.MaxSimilarity(req.Intensity) {
		return "", attempts, fmt.Sprintf("model output too close to the source (similarity %.3f, limit %.2f)",
			sim, strategy.MaxSimilarity(req.Intensity))
	}
	return out, attempts, ""
}

// perSentencePass rewrites every sentence with its own model call. Sentences
// whose calls fail or drop a protected term fall back to their rule-engine
// form, so even a batch with no successful model call still gets rewritten.
func (o *Orchestrator) perSentencePass(ctx context.Context, engine *rules.Engine, req internal.RewriteRequest, batch []segment.Sentence, ctxText string) (string, int, string) {
	fellBack := 0
	attempts := 0
	var b strings.Builder
	prev := ctxText
	for j, s := range batch {
		rreq := rewriter.Request{
			Text:      s.Text,
			Task:      req.Task,
			Intensity: req.Intensity,
			Terms:     req.Terms,
			Context:   prev,
		}
		out, n, err := o.callWithRetry(ctx, rreq)
		attempts += n
		if err != nil || len(protect.Missing(s.Text, out, req.Terms)) > 0 {
			out, _ = engine.Rewrite(s.Text, req.Task, req.Intensity, req.Terms)
			fellBack++
		}
		b.WriteString(out)
		if j < len(batch)-1 {
			b.WriteString(s.Trail)
		}
		prev = s.Text
	}
	warn := ""
	if fellBack > 0 {
		warn = fmt.Sprintf("%d of %d sentences fell back to rule output", fellBack, len(batch))
	}
	return b.String(), attempts, warn
}

// callWithRetry issues one model call with exponential backoff and jitter.
// Credential errors and context cancellation stop the retry loop immediately.
func (o *Orchestrator) callWithRetry(ctx context.Context, rreq rewriter.Request) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt < o.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := o.config.RetryDelay * (1 << (attempt - 1))
			delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
			select {
			case <-ctx.Done():
				return "", attempt, fmt.Errorf("%w: %v", rewriter.ErrTimeout, ctx.Err())
			case <-time.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
		out, err := o.backend.Rewrite(callCtx, rreq)
		cancel()
		if err == nil {
			return out, attempt + 1, nil
		}
		lastErr = err
		if !rewriter.Retryable(err) || ctx.Err() != nil {
			return "", attempt + 1, err
		}
		o.logger.Debug("model call retrying", "attempt", attempt+1, "error", err)
	}
	return "", o.config.MaxAttempts, lastErr
}
