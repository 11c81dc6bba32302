package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luotian/rephrase/internal"
	"github.com/luotian/rephrase/internal/rewriter"
)

// mockRewriter lets each test script the backend behavior.
type mockRewriter struct {
	fn    func(ctx context.Context, req rewriter.Request) (string, error)
	calls atomic.Int64
}

func (m *mockRewriter) Name() string { return "mock" }

func (m *mockRewriter) Rewrite(ctx context.Context, req rewriter.Request) (string, error) {
	m.calls.Add(1)
	return m.fn(ctx, req)
}

// mockCache is an in-memory Cache.
type mockCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newMockCache() *mockCache {
	return &mockCache{items: make(map[string]string)}
}

func cacheKey(source string, task internal.Task, intensity int) string {
	return fmt.Sprintf("%s|%s|%d", source, task, intensity)
}

func (c *mockCache) GetRewrite(source string, task internal.Task, intensity int) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[cacheKey(source, task, intensity)]
	return v, ok, nil
}

func (c *mockCache) SaveRewrite(source string, task internal.Task, intensity int, rewritten string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[cacheKey(source, task, intensity)] = rewritten
	return nil
}

func reverseRunes(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// neutralSentences avoid every rule-table trigger so the rule pass is an
// identity transform and tests can predict the model input exactly.
var neutralSentences = []string{
	"甲乙丙丁戊己庚辛。",
	"壬癸子丑寅卯辰巳。",
	"午未申酉戌亥春夏。",
	"秋冬东南西北上下。",
	"左右前后内外高低。",
}

func request(text string, task internal.Task, intensity int, terms ...string) internal.RewriteRequest {
	return internal.RewriteRequest{
		ID:         "req-test",
		SourceText: text,
		Task:       task,
		Intensity:  intensity,
		Terms:      terms,
	}
}

func TestRun_RuleOnlyNoBackendNeeded(t *testing.T) {
	o := New(nil, Config{RuleLang: "zh", Seed: 7})
	src := "本文研究了企业管理问题。首先，方法很重要。"
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != DocCompleted {
		t.Errorf("status = %s", res.Status)
	}
	if res.RewrittenText == src {
		t.Error("rule-only rewrite left the text unchanged")
	}
	if res.Similarity >= 1.0 {
		t.Errorf("similarity = %v", res.Similarity)
	}
	for _, br := range res.Batches {
		if br.Status != BatchAccepted {
			t.Errorf("batch %d status = %s", br.Index, br.Status)
		}
		if len(br.AppliedRules) == 0 {
			t.Errorf("batch %d applied no rules", br.Index)
		}
	}
}

func TestRun_LLMStrategyRequiresBackend(t *testing.T) {
	o := New(nil, Config{RuleLang: "zh"})
	if _, err := o.Run(context.Background(), request("文本。", internal.TaskDedup, 4)); err == nil {
		t.Fatal("expected error for missing backend")
	}
}

func TestRun_BatchOrderPreservedUnderParallelism(t *testing.T) {
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
		return reverseRunes(req.Text), nil
	}}

	src := strings.Join(neutralSentences, "")
	var progressCalls atomic.Int64
	o := New(mock, Config{
		RuleLang:   "zh",
		BatchRunes: 9, // one sentence per batch
		Workers:    4,
		Progress:   func(done, total int) { progressCalls.Add(1) },
	})

	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Batches) != len(neutralSentences) {
		t.Fatalf("got %d batches, want %d", len(res.Batches), len(neutralSentences))
	}

	var want strings.Builder
	for _, s := range neutralSentences {
		want.WriteString(reverseRunes(s))
	}
	if res.RewrittenText != want.String() {
		t.Errorf("reassembly out of order:\ngot  %q\nwant %q", res.RewrittenText, want.String())
	}
	for i, br := range res.Batches {
		if br.Index != i {
			t.Errorf("batch at position %d has index %d", i, br.Index)
		}
		if br.Status != BatchAccepted {
			t.Errorf("batch %d status = %s (%s)", i, br.Status, br.Warning)
		}
	}
	if got := progressCalls.Load(); got != int64(len(neutralSentences)) {
		t.Errorf("progress called %d times, want %d", got, len(neutralSentences))
	}
}

func TestRun_FailingBatchDegradesToRuleOutput(t *testing.T) {
	bad := neutralSentences[2]
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		if strings.Contains(req.Text, strings.TrimSuffix(bad, "。")) {
			return "", fmt.Errorf("%w: injected", rewriter.ErrMalformed)
		}
		return reverseRunes(req.Text), nil
	}}

	src := strings.Join(neutralSentences, "")
	o := New(mock, Config{RuleLang: "zh", BatchRunes: 9, Workers: 2, MaxAttempts: 2, RetryDelay: time.Millisecond})

	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != DocCompletedWithWarnings {
		t.Errorf("document with a degraded batch: status = %s, want completed-with-warnings", res.Status)
	}
	for i, br := range res.Batches {
		if i == 2 {
			if br.Status != BatchAcceptedWithWarning {
				t.Errorf("failing batch status = %s, want warning", br.Status)
			}
			// Rule pass is identity on neutral text, so the fallback
			// is the source itself.
			if br.RewrittenText != bad {
				t.Errorf("fallback text = %q, want rule output %q", br.RewrittenText, bad)
			}
		} else if br.Status != BatchAccepted {
			t.Errorf("batch %d status = %s", i, br.Status)
		}
	}
}

func TestRun_CancelledContextYieldsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := strings.Join(neutralSentences, "")
	o := New(nil, Config{RuleLang: "zh", BatchRunes: 9})
	res, err := o.Run(ctx, request(src, internal.TaskDedup, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != DocPartiallyCancelled {
		t.Errorf("status = %s, want partially-cancelled", res.Status)
	}
	if res.RewrittenText != src {
		t.Error("cancelled batches must keep their source text")
	}
	for _, br := range res.Batches {
		if br.Status != BatchCancelled {
			t.Errorf("batch %d status = %s", br.Index, br.Status)
		}
	}
}

func TestRun_IntensifiedReissueOnHighSimilarity(t *testing.T) {
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		if req.Intensified {
			return reverseRunes(req.Text), nil
		}
		return req.Text, nil // lazy first answer, too close to the source
	}}

	src := neutralSentences[0]
	o := New(mock, Config{RuleLang: "zh", RetryDelay: time.Millisecond})
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := mock.calls.Load(); got != 2 {
		t.Errorf("backend called %d times, want 2", got)
	}
	if res.RewrittenText != reverseRunes(src) {
		t.Errorf("intensified output not used: %q", res.RewrittenText)
	}
	if res.Batches[0].Status != BatchAccepted {
		t.Errorf("status = %s", res.Batches[0].Status)
	}
}

func TestRun_OverThresholdOutputFallsBackToRules(t *testing.T) {
	// The backend parrots its input even when pushed harder, so the result
	// can never clear the intensity-4 ceiling.
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		return req.Text, nil
	}}

	src := neutralSentences[0]
	o := New(mock, Config{RuleLang: "zh", RetryDelay: time.Millisecond})
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 4))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := mock.calls.Load(); got != 2 {
		t.Errorf("backend called %d times, want initial + intensified = 2", got)
	}
	br := res.Batches[0]
	if br.Status != BatchAcceptedWithWarning {
		t.Errorf("status = %s, want warning", br.Status)
	}
	if br.Warning == "" {
		t.Error("over-threshold fallback left no warning")
	}
	// Rule pass is identity on neutral text, so the fallback is the source.
	if br.RewrittenText != src {
		t.Errorf("fallback text = %q, want rule output %q", br.RewrittenText, src)
	}
	if res.Status != DocCompletedWithWarnings {
		t.Errorf("document status = %s, want completed-with-warnings", res.Status)
	}
}

func TestRun_PerSentenceFailureFallsBackToRules(t *testing.T) {
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		return "", fmt.Errorf("%w: injected", rewriter.ErrMalformed)
	}}

	src := "本文研究了企业管理对绩效产生了正向影响。"
	o := New(mock, Config{RuleLang: "zh", Seed: 42, MaxAttempts: 2, RetryDelay: time.Millisecond})
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	br := res.Batches[0]
	if br.Status != BatchAcceptedWithWarning {
		t.Errorf("status = %s, want warning", br.Status)
	}
	if br.RewrittenText == src {
		t.Errorf("failed model calls left the source untransformed: %q", br.RewrittenText)
	}
	// The rule tables still restructure the sentence.
	if !strings.Contains(br.RewrittenText, "受到") {
		t.Errorf("rule fallback not applied: %q", br.RewrittenText)
	}
	if !strings.Contains(br.Warning, "fell back") {
		t.Errorf("warning = %q", br.Warning)
	}
}

func TestRun_CancelledDuringModelCallClearsAudit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mock := &mockRewriter{fn: func(c context.Context, req rewriter.Request) (string, error) {
		cancel()
		return "", fmt.Errorf("%w: connection closed", rewriter.ErrTimeout)
	}}

	src := "本文研究了企业管理对绩效产生了正向影响。"
	o := New(mock, Config{RuleLang: "zh", MaxAttempts: 2, RetryDelay: time.Millisecond})
	res, err := o.Run(ctx, request(src, internal.TaskDedup, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	br := res.Batches[0]
	if br.Status != BatchCancelled {
		t.Fatalf("status = %s, want cancelled", br.Status)
	}
	if br.RewrittenText != src {
		t.Errorf("cancelled batch must keep its source text: %q", br.RewrittenText)
	}
	if len(br.AppliedRules) != 0 {
		t.Errorf("cancelled batch kept applied rules: %v", br.AppliedRules)
	}
	if br.Warning != "" {
		t.Errorf("cancelled batch kept a warning: %q", br.Warning)
	}
	if res.Status != DocPartiallyCancelled {
		t.Errorf("document status = %s", res.Status)
	}
}

func TestRun_ProtectedTermViolationRetriedThenAccepted(t *testing.T) {
	src := "本段落使用双重差分进行检验。"
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		if req.Intensified {
			return "经过重构的段落仍然使用双重差分进行检验分析工作。", nil
		}
		return "经过重构的段落丢掉了那个术语。", nil
	}}

	o := New(mock, Config{RuleLang: "zh", RetryDelay: time.Millisecond})
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 3, "双重差分"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.RewrittenText, "双重差分") {
		t.Errorf("protected term missing from result: %q", res.RewrittenText)
	}
	if res.Batches[0].Status != BatchAccepted {
		t.Errorf("status = %s (%s)", res.Batches[0].Status, res.Batches[0].Warning)
	}
	if got := mock.calls.Load(); got != 2 {
		t.Errorf("backend called %d times, want 2", got)
	}
}

func TestRun_ProtectedTermViolationFallsBackToRules(t *testing.T) {
	src := "本段落使用双重差分进行检验。"
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		return "这个回答永远不含受保护的词。", nil
	}}

	o := New(mock, Config{RuleLang: "zh", RetryDelay: time.Millisecond})
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 3, "双重差分"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	br := res.Batches[0]
	if br.Status != BatchAcceptedWithWarning {
		t.Errorf("status = %s, want warning", br.Status)
	}
	if !strings.Contains(br.RewrittenText, "双重差分") {
		t.Errorf("fallback lost the protected term: %q", br.RewrittenText)
	}
}

func TestRun_UnauthorizedNotRetried(t *testing.T) {
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		return "", fmt.Errorf("%w: bad key", rewriter.ErrUnauthorized)
	}}

	o := New(mock, Config{RuleLang: "zh", MaxAttempts: 3, RetryDelay: time.Millisecond})
	res, err := o.Run(context.Background(), request(neutralSentences[0], internal.TaskDedup, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := mock.calls.Load(); got != 1 {
		t.Errorf("credential failure retried: %d calls", got)
	}
	if res.Batches[0].Status != BatchAcceptedWithWarning {
		t.Errorf("status = %s", res.Batches[0].Status)
	}
}

func TestRun_TransientErrorRetried(t *testing.T) {
	var n atomic.Int64
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		if n.Add(1) == 1 {
			return "", fmt.Errorf("%w", rewriter.ErrRateLimited)
		}
		return reverseRunes(req.Text), nil
	}}

	o := New(mock, Config{RuleLang: "zh", MaxAttempts: 3, RetryDelay: time.Millisecond})
	res, err := o.Run(context.Background(), request(neutralSentences[0], internal.TaskDedup, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Batches[0].Status != BatchAccepted {
		t.Errorf("status = %s (%s)", res.Batches[0].Status, res.Batches[0].Warning)
	}
	if res.Batches[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Batches[0].Attempts)
	}
}

func TestRun_CacheHitSkipsBackend(t *testing.T) {
	cache := newMockCache()
	src := neutralSentences[0]
	cache.SaveRewrite(src, internal.TaskDedup, 3, "缓存中的改写结果内容。")

	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		return reverseRunes(req.Text), nil
	}}
	o := New(mock, Config{RuleLang: "zh", Cache: cache})
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.calls.Load() != 0 {
		t.Error("backend called despite cache hit")
	}
	if !res.Batches[0].FromCache {
		t.Error("batch not marked as cached")
	}
	if res.RewrittenText != "缓存中的改写结果内容。" {
		t.Errorf("got %q", res.RewrittenText)
	}
}

func TestRun_AcceptedBatchSavedToCache(t *testing.T) {
	cache := newMockCache()
	src := neutralSentences[0]
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		return reverseRunes(req.Text), nil
	}}
	o := New(mock, Config{RuleLang: "zh", Cache: cache})
	if _, err := o.Run(context.Background(), request(src, internal.TaskDedup, 3)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, ok, _ := cache.GetRewrite(src, internal.TaskDedup, 3); !ok || got != reverseRunes(src) {
		t.Errorf("cache entry missing or wrong: %q %v", got, ok)
	}
}

func TestRun_PerSentenceStrategy(t *testing.T) {
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		return reverseRunes(req.Text), nil
	}}
	src := neutralSentences[0] + neutralSentences[1]
	o := New(mock, Config{RuleLang: "zh"})
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Two sentences in one batch, each rewritten by its own call.
	if got := mock.calls.Load(); got != 2 {
		t.Errorf("backend called %d times, want 2", got)
	}
	want := reverseRunes(neutralSentences[0]) + reverseRunes(neutralSentences[1])
	if res.RewrittenText != want {
		t.Errorf("got %q, want %q", res.RewrittenText, want)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	o := New(nil, Config{RuleLang: "zh"})
	for _, src := range []string{"", "  \n\t "} {
		if _, err := o.Run(context.Background(), request(src, internal.TaskDeai, 1)); !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("Run(%q) = %v, want ErrEmptyDocument", src, err)
		}
	}
}

func TestRun_InvalidIntensity(t *testing.T) {
	o := New(nil, Config{})
	if _, err := o.Run(context.Background(), request("text.", internal.TaskDedup, 7)); err == nil {
		t.Fatal("expected error")
	}
}

func TestRun_DeaiReportsAIScores(t *testing.T) {
	src := "首先，本文介绍背景。其次，本文介绍方法。再次，本文介绍数据。最后，本文给出结论。总之，综上所述，研究具有重要意义。"
	o := New(nil, Config{RuleLang: "zh", Seed: 1})
	res, err := o.Run(context.Background(), request(src, internal.TaskDeai, 2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.AIScoreBefore <= 0 {
		t.Errorf("marker-heavy source scored %v", res.AIScoreBefore)
	}
	if res.AIScoreAfter >= res.AIScoreBefore {
		t.Errorf("score did not drop: %v -> %v", res.AIScoreBefore, res.AIScoreAfter)
	}
}

func TestSummarizeAndReport(t *testing.T) {
	o := New(nil, Config{RuleLang: "zh", Seed: 3})
	src := "本文研究了管理问题。方法特别重要。"
	res, err := o.Run(context.Background(), request(src, internal.TaskDedup, 2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sum := Summarize(res)
	if sum.SentencesTotal != 2 {
		t.Errorf("sentences total = %d", sum.SentencesTotal)
	}
	if sum.SentencesChanged == 0 {
		t.Error("no sentences counted as changed")
	}
	if len(sum.RuleCounts) == 0 {
		t.Error("no rule counts collected")
	}

	report := BuildReport(res)
	for _, want := range []string{"# Rewrite Report", "## Metrics", "## Batches", "dedup"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRetryErrorsSurfaceLastError(t *testing.T) {
	mock := &mockRewriter{fn: func(ctx context.Context, req rewriter.Request) (string, error) {
		return "", rewriter.ErrRateLimited
	}}
	o := New(mock, Config{RuleLang: "zh", MaxAttempts: 2, RetryDelay: time.Millisecond})
	_, n, err := o.callWithRetry(context.Background(), rewriter.Request{Text: "x", Task: internal.TaskDedup, Intensity: 3})
	if n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
	if !errors.Is(err, rewriter.ErrRateLimited) {
		t.Errorf("err = %v", err)
	}
}
