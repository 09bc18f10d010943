package chunker

import (
	"strings"
	"testing"
)

func TestSplitEmptyInput(t *testing.T) {
	if got := Split("", DefaultMaxSize, DefaultOverlap); len(got) != 0 {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
	if got := Split("   \n\n \t \n\n  ", DefaultMaxSize, DefaultOverlap); len(got) != 0 {
		t.Fatalf("whitespace input: expected no chunks, got %d", len(got))
	}
}

func TestSplitSingleParagraph(t *testing.T) {
	got := Split("Just one short paragraph.", DefaultMaxSize, DefaultOverlap)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0] != "Just one short paragraph." {
		t.Fatalf("unexpected chunk: %q", got[0])
	}
}

func TestSplitPacksParagraphsUpToMaxSize(t *testing.T) {
	p1 := strings.Repeat("a", 400)
	p2 := strings.Repeat("b", 400)
	p3 := strings.Repeat("c", 400)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	got := Split(text, 1000, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0] != p1+"\n\n"+p2 {
		t.Fatalf("first chunk should pack two paragraphs, got len=%d", len(got[0]))
	}
	if got[1] != p3 {
		t.Fatalf("second chunk mismatch: len=%d", len(got[1]))
	}
}

func TestSplitTwoAndHalfThousandCharsYieldsThreeChunks(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", 18))
	paras := make([]string, 5)
	for i := range paras {
		paras[i] = para
	}
	text := strings.Join(paras, "\n\n")
	if len(text) < 2400 || len(text) > 2600 {
		t.Fatalf("fixture drifted: len=%d", len(text))
	}

	got := Split(text, 1000, 100)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, c := range got {
		if len(c) > 1000+100+1 {
			t.Fatalf("chunk %d exceeds size bound: len=%d", i, len(c))
		}
	}
}

func TestSplitOversizedParagraphFallsBackToSentences(t *testing.T) {
	sentence := strings.Repeat("word ", 8) + "end."
	text := strings.TrimSpace(strings.Repeat(sentence+" ", 20))
	if len(text) <= 200 {
		t.Fatalf("fixture drifted: len=%d", len(text))
	}

	got := Split(text, 200, 0)
	if len(got) < 2 {
		t.Fatalf("expected sentence fallback to produce several chunks, got %d", len(got))
	}
	for i, c := range got {
		if len(c) > 200 {
			t.Fatalf("chunk %d exceeds maxSize: len=%d", i, len(c))
		}
		if !strings.HasSuffix(c, "end.") {
			t.Fatalf("chunk %d should end on a sentence boundary: %q", i, c[len(c)-20:])
		}
	}
}

func TestSplitSentenceRemainderAbsorbsNextParagraph(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("This sentence fills the buffer nicely. ", 7))
	short := "A small trailing paragraph."
	text := long + "\n\n" + short

	got := Split(text, 100, 0)
	last := got[len(got)-1]
	if !strings.Contains(last, short) {
		t.Fatalf("trailing paragraph should pack with the sentence remainder, got %q", last)
	}
	if !strings.Contains(last, "\n\n") {
		t.Fatalf("remainder and paragraph should join on a blank line, got %q", last)
	}
}

func TestSplitOverlapPrefix(t *testing.T) {
	p1 := strings.Repeat("a", 900)
	p2 := strings.Repeat("b", 900)
	text := p1 + "\n\n" + p2

	got := Split(text, 1000, 100)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0] != p1 {
		t.Fatalf("first chunk must carry no prefix")
	}
	wantPrefix := strings.Repeat("a", 100) + " "
	if !strings.HasPrefix(got[1], wantPrefix) {
		t.Fatalf("second chunk missing overlap prefix: %q", got[1][:110])
	}
	if got[1][len(wantPrefix):] != p2 {
		t.Fatalf("second chunk core content mutated")
	}
}

func TestSplitOverlapShorterPreviousChunk(t *testing.T) {
	text := strings.Repeat("a", 50) + "\n\n" + strings.Repeat("b", 90) + "\n\n" + strings.Repeat("c", 90)

	got := Split(text, 100, 100)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	// Previous chunk shorter than overlap: the whole chunk becomes the prefix.
	if !strings.HasPrefix(got[1], strings.Repeat("a", 50)+" ") {
		t.Fatalf("expected whole previous chunk as prefix, got %q", got[1][:60])
	}
	// Prefix comes from the un-prefixed predecessor, never compounding.
	if strings.Contains(got[2], "a") {
		t.Fatalf("overlap prefix compounded across chunks: %q", got[2][:60])
	}
}

func TestSplitZeroOverlapSkipsPass(t *testing.T) {
	text := strings.Repeat("a", 900) + "\n\n" + strings.Repeat("b", 900)
	got := Split(text, 1000, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if strings.Contains(got[1], "a") {
		t.Fatalf("overlap applied despite overlap=0")
	}
}

func TestSplitSpansMapBackToSource(t *testing.T) {
	p1 := strings.Repeat("a", 600)
	p2 := strings.Repeat("b", 600)
	text := "  " + p1 + "\n\n\n" + p2 + "  "

	got := SplitSpans(text, 1000, 100)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if text[got[0].SpanStart:got[0].SpanEnd] != p1 {
		t.Fatalf("first span mismatch: [%d,%d)", got[0].SpanStart, got[0].SpanEnd)
	}
	if text[got[1].SpanStart:got[1].SpanEnd] != p2 {
		t.Fatalf("second span mismatch: [%d,%d)", got[1].SpanStart, got[1].SpanEnd)
	}
	if got[0].SpanEnd > got[1].SpanStart {
		t.Fatalf("spans out of order")
	}
	// The overlap prefix repeats covered text and must not widen the span.
	if !strings.HasPrefix(got[1].Content, strings.Repeat("a", 100)+" ") {
		t.Fatalf("second chunk missing overlap prefix")
	}
}

func TestSplitCoverageNoContentDropped(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("alpha beta gamma delta epsilon ", 12))
	paras := []string{para, para, para, para}
	text := strings.Join(paras, "\n\n")

	chunks := SplitSpans(text, 500, 50)
	var rebuilt strings.Builder
	for i, c := range chunks {
		core := c.Content
		if i > 0 {
			// Drop the leading overlap token; any prefix remnant only
			// inflates the count, which is fine for a lower bound.
			if idx := strings.Index(core, " "); idx >= 0 {
				core = core[idx+1:]
			}
		}
		rebuilt.WriteString(core)
	}

	stripSpace := func(s string) int {
		n := 0
		for _, r := range s {
			if r != ' ' && r != '\n' && r != '\t' {
				n++
			}
		}
		return n
	}
	if stripSpace(rebuilt.String()) < stripSpace(text) {
		t.Fatalf("content dropped: rebuilt=%d original=%d", stripSpace(rebuilt.String()), stripSpace(text))
	}
}
