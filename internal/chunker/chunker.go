// Package chunker splits raw document text into bounded, overlapping
// segments for embedding. Splitting is paragraph-first with a sentence
// fallback for paragraphs that exceed the size limit.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxSize = 1000
	DefaultOverlap = 100
)

// Chunk carries the chunk content plus the byte span of the source text
// it was cut from. The overlap prefix repeats text already covered by
// the previous chunk, so spans refer to the un-prefixed content only.
type Chunk struct {
	Content   string
	SpanStart int
	SpanEnd   int
}

var paragraphSep = regexp.MustCompile(`\n\n+`)

// Split chunks text and returns the contents in order.
func Split(text string, maxSize, overlap int) []string {
	chunks := SplitSpans(text, maxSize, overlap)
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

// SplitSpans chunks text and keeps source spans alongside each chunk.
//
// Paragraphs accumulate into a buffer until the next one would push it
// past maxSize. A paragraph that alone exceeds maxSize is cut on
// sentence boundaries instead; its trailing sentence run stays in the
// buffer and may absorb the paragraphs that follow. After the main
// pass, every chunk but the first is prefixed with the trailing
// overlap characters of its predecessor.
func SplitSpans(text string, maxSize, overlap int) []Chunk {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}

	chunks := []Chunk{}

	var buf strings.Builder
	bufStart, bufEnd := 0, 0

	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{Content: content, SpanStart: bufStart, SpanEnd: bufEnd})
	}

	appendPiece := func(p piece, sep string) {
		if buf.Len() == 0 {
			bufStart = p.start
		} else {
			buf.WriteString(sep)
		}
		buf.WriteString(p.text)
		bufEnd = p.end
	}

	for _, p := range paragraphPieces(text) {
		if len(p.text) > maxSize {
			flush()
			for _, s := range sentencePieces(p) {
				switch {
				case buf.Len() == 0:
					appendPiece(s, "")
				case buf.Len()+1+len(s.text) <= maxSize:
					appendPiece(s, " ")
				default:
					flush()
					appendPiece(s, "")
				}
			}
			continue
		}

		switch {
		case buf.Len() == 0:
			appendPiece(p, "")
		case buf.Len()+2+len(p.text) <= maxSize:
			appendPiece(p, "\n\n")
		default:
			flush()
			appendPiece(p, "")
		}
	}
	flush()

	if overlap == 0 || len(chunks) < 2 {
		return chunks
	}

	out := make([]Chunk, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		// Raw suffix of the un-prefixed predecessor, not sentence-aware.
		out[i] = Chunk{
			Content:   tailRunes(chunks[i-1].Content, overlap) + " " + chunks[i].Content,
			SpanStart: chunks[i].SpanStart,
			SpanEnd:   chunks[i].SpanEnd,
		}
	}
	return out
}

type piece struct {
	text  string
	start int
	end   int
}

func paragraphPieces(text string) []piece {
	seps := paragraphSep.FindAllStringIndex(text, -1)

	bounds := make([][2]int, 0, len(seps)+1)
	prev := 0
	for _, s := range seps {
		bounds = append(bounds, [2]int{prev, s[0]})
		prev = s[1]
	}
	bounds = append(bounds, [2]int{prev, len(text)})

	out := make([]piece, 0, len(bounds))
	for _, b := range bounds {
		p := trimmedPiece(text, b[0], b[1])
		if p.text != "" {
			out = append(out, p)
		}
	}
	return out
}

func trimmedPiece(text string, start, end int) piece {
	seg := text[start:end]
	left := strings.TrimLeftFunc(seg, unicode.IsSpace)
	start += len(seg) - len(left)
	trimmed := strings.TrimRightFunc(left, unicode.IsSpace)
	return piece{text: trimmed, start: start, end: start + len(trimmed)}
}

// sentencePieces splits a paragraph after '.', '!' or '?' followed by
// whitespace.
func sentencePieces(p piece) []piece {
	var out []piece
	text := p.text
	segStart := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == '.' || r == '!' || r == '?' {
			j := i + size
			k := j
			for k < len(text) {
				r2, size2 := utf8.DecodeRuneInString(text[k:])
				if !unicode.IsSpace(r2) {
					break
				}
				k += size2
			}
			if k > j {
				out = append(out, trimmedPiece(text, segStart, j).offsetBy(p.start))
				segStart = k
				i = k
				continue
			}
		}
		i += size
	}
	if segStart < len(text) {
		out = append(out, trimmedPiece(text, segStart, len(text)).offsetBy(p.start))
	}
	return out
}

func (p piece) offsetBy(base int) piece {
	return piece{text: p.text, start: p.start + base, end: p.end + base}
}

func tailRunes(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	count := utf8.RuneCountInString(s)
	if count <= n {
		return s
	}
	skip := count - n
	for i := range s {
		if skip == 0 {
			return s[i:]
		}
		skip--
	}
	return s
}
