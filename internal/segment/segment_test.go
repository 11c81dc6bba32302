package segment

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_RoundTrip(t *testing.T) {
	docs := []string{
		"第一句话。第二句话！第三句话？",
		"  Leading spaces. Middle sentence!  Trailing text  ",
		"One sentence only without terminator",
		"Mixed 中文 and English. 句号在这里。Done!",
		"Para one.\n\nPara two continues. And ends.\n",
		"值为3.14的常数不分句。下一句。",
	}
	for _, d := range docs {
		got := Split(d).Reconstruct()
		if got != d {
			t.Errorf("round trip failed:\n  in:  %q\n  out: %q", d, got)
		}
	}
}

func TestSplit_OffsetsContiguous(t *testing.T) {
	text := "  First one. Second one!  Third?  "
	doc := Split(text)

	prevEnd := len(doc.Lead)
	for _, s := range doc.Sentences {
		if s.Start != prevEnd {
			t.Errorf("gap before sentence %q: start=%d, want %d", s.Text, s.Start, prevEnd)
		}
		if text[s.Start:s.End] != s.Text {
			t.Errorf("offsets do not cover text for %q", s.Text)
		}
		prevEnd = s.End + len(s.Trail)
	}
	if prevEnd != len(text) {
		t.Errorf("sentences do not cover document: end=%d, len=%d", prevEnd, len(text))
	}
}

func TestSplit_NoTerminator(t *testing.T) {
	doc := Split("a single unterminated fragment")
	if len(doc.Sentences) != 1 {
		t.Fatalf("expected 1 sentence, got %d", len(doc.Sentences))
	}
	if doc.Sentences[0].Text != "a single unterminated fragment" {
		t.Errorf("unexpected sentence text: %q", doc.Sentences[0].Text)
	}
}

func TestSplit_Empty(t *testing.T) {
	if doc := Split(""); len(doc.Sentences) != 0 {
		t.Errorf("expected no sentences for empty input")
	}
	doc := Split("   \n ")
	if len(doc.Sentences) != 0 {
		t.Errorf("expected no sentences for whitespace input")
	}
	if doc.Reconstruct() != "   \n " {
		t.Errorf("whitespace input must round-trip")
	}
}

func TestSplit_DecimalNumbers(t *testing.T) {
	doc := Split("The rate rose by 3.5 percent. Then it fell.")
	if len(doc.Sentences) != 2 {
		t.Fatalf("decimal point split a sentence: %d sentences", len(doc.Sentences))
	}
	if !strings.Contains(doc.Sentences[0].Text, "3.5") {
		t.Errorf("decimal lost: %q", doc.Sentences[0].Text)
	}
}

func TestSplit_Abbreviations(t *testing.T) {
	doc := Split("See Smith et al. for details. The method works, e.g. on panels.")
	if len(doc.Sentences) != 2 {
		t.Fatalf("abbreviation split a sentence: got %d sentences: %+v", len(doc.Sentences), doc.Sentences)
	}
}

func TestSplit_QuotesAndParens(t *testing.T) {
	doc := Split("He said “stop. wait” and left. Done (see Fig. 2). Ok.")
	if len(doc.Sentences) != 3 {
		t.Fatalf("expected 3 sentences, got %d: %+v", len(doc.Sentences), doc.Sentences)
	}
	if !strings.Contains(doc.Sentences[0].Text, "“stop. wait”") {
		t.Errorf("quoted period split a sentence: %q", doc.Sentences[0].Text)
	}
	if !strings.Contains(doc.Sentences[1].Text, "(see Fig. 2)") {
		t.Errorf("parenthesised period split a sentence: %q", doc.Sentences[1].Text)
	}
}

func TestSplit_ChinesePunctuation(t *testing.T) {
	doc := Split("本文研究了企业管理。结果是正向的！为什么呢？")
	if len(doc.Sentences) != 3 {
		t.Fatalf("expected 3 sentences, got %d", len(doc.Sentences))
	}
	wants := []string{"本文研究了企业管理。", "结果是正向的！", "为什么呢？"}
	for i, w := range wants {
		if doc.Sentences[i].Text != w {
			t.Errorf("sentence %d: got %q, want %q", i, doc.Sentences[i].Text, w)
		}
	}
}

func TestBatches_TenThousandCharDocument(t *testing.T) {
	// 500 sentences of 20 runes each = 10,000 runes; budget 2,000 → 5 batches.
	sentence := "一二三四五六七八九十一二三四五六七八九。"
	if utf8.RuneCountInString(sentence) != 20 {
		t.Fatalf("fixture sentence is %d runes", utf8.RuneCountInString(sentence))
	}
	doc := Split(strings.Repeat(sentence, 500))

	batches := Batches(doc.Sentences, 2000)
	if len(batches) != 5 {
		t.Fatalf("expected 5 batches, got %d", len(batches))
	}
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != 500 {
		t.Errorf("batches lost sentences: %d of 500", total)
	}
}

func TestBatches_OversizedSentence(t *testing.T) {
	doc := Split(strings.Repeat("长", 3000) + "。短句。")
	batches := Batches(doc.Sentences, 2000)
	if len(batches) != 2 {
		t.Fatalf("expected oversized sentence isolated into its own batch, got %d batches", len(batches))
	}
	if len(batches[0]) != 1 {
		t.Errorf("oversized sentence should be alone in its batch")
	}
}

func TestBatches_PreservesOrder(t *testing.T) {
	doc := Split("A one. B two. C three. D four. E five.")
	batches := Batches(doc.Sentences, 15)

	var joined []string
	for _, b := range batches {
		for _, s := range b {
			joined = append(joined, s.Text)
		}
	}
	for i, s := range doc.Sentences {
		if joined[i] != s.Text {
			t.Fatalf("order broken at %d: %q vs %q", i, joined[i], s.Text)
		}
	}
}

func TestBatchText(t *testing.T) {
	src := "First one.  Second one. Third one.\n"
	doc := Split(src)
	batches := Batches(doc.Sentences, 25)

	var rebuilt strings.Builder
	rebuilt.WriteString(doc.Lead)
	for _, b := range batches {
		body, trail := BatchText(src, b)
		rebuilt.WriteString(body)
		rebuilt.WriteString(trail)
	}
	if rebuilt.String() != src {
		t.Errorf("batch bodies + trails do not reconstruct source:\n%q\n%q", rebuilt.String(), src)
	}
}

func TestTrailingContext(t *testing.T) {
	doc := Split("First here. Second here. Third here. Fourth here.")
	ctx := TrailingContext(doc.Sentences, 2, 0)
	if ctx != "Third here. Fourth here." {
		t.Errorf("unexpected context: %q", ctx)
	}

	// Cap trims from the front, keeping the most recent text.
	capped := TrailingContext(doc.Sentences, 4, 10)
	if utf8.RuneCountInString(capped) != 10 || !strings.HasSuffix(capped, "here.") {
		t.Errorf("cap not applied from the front: %q", capped)
	}

	if TrailingContext(nil, 2, 0) != "" {
		t.Errorf("expected empty context for no sentences")
	}
}
