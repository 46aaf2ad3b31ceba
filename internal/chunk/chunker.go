package chunk

import (
	"fmt"
	"regexp"
	"strings"

	kberrors "github.com/angeless/travelcs/internal/errors"
)

// Chunker splits documents into chunks according to per-type configuration.
type Chunker struct {
	config  Config
	counter TokenCounter
}

// New creates a Chunker. A nil counter falls back to the heuristic counter.
func New(config Config, counter TokenCounter) (*Chunker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Chunker{config: config, counter: counter}, nil
}

// Chunk splits a document into an ordered chunk sequence.
// An empty or whitespace-only document yields an empty sequence, not an
// error. A structurally unparseable document fails with a document format
// error; the caller isolates the failure to that document.
func (c *Chunker) Chunk(doc *Document) ([]*Chunk, error) {
	if doc == nil {
		return nil, kberrors.DocumentFormatError("", "nil document", nil)
	}

	switch doc.Type {
	case DocTypeFAQ:
		return c.chunkFAQ(doc)
	case DocTypePolicy:
		if strings.TrimSpace(doc.RawContent) == "" {
			return []*Chunk{}, nil
		}
		return c.chunkPolicy(doc)
	case DocTypeProduct:
		if strings.TrimSpace(doc.RawContent) == "" {
			return []*Chunk{}, nil
		}
		return c.chunkFlat(doc)
	default:
		return nil, kberrors.DocumentFormatError(doc.ID, fmt.Sprintf("unknown document type %q", doc.Type), nil)
	}
}

// chunkFlat is the generic path: recursive separator splitting, trailing
// fragment merge, then overlap prefixing.
func (c *Chunker) chunkFlat(doc *Document) ([]*Chunk, error) {
	cfg := c.config[doc.Type]
	segments := c.split(doc.RawContent, cfg.Separators, cfg.TargetTokens)
	segments = c.mergeTrailing(segments, cfg.MinTokens)
	return c.assemble(doc, segments, cfg, 0, ""), nil
}

// faqMarkers recognizes question/answer line prefixes in raw FAQ content.
var (
	faqQuestionRe = regexp.MustCompile(`^(?:Q|q|问)[:：]\s*`)
	faqAnswerRe   = regexp.MustCompile(`^(?:A|a|答)[:：]\s*`)
)

// chunkFAQ emits one atomic chunk per FAQ document. No overlap. The embedding
// input weights the question above the answer by repeating it in a fixed
// template; the stored chunk text stays a single Q/A pair.
func (c *Chunker) chunkFAQ(doc *Document) ([]*Chunk, error) {
	question := strings.TrimSpace(doc.Metadata["question"])
	answer := strings.TrimSpace(doc.Metadata["answer"])

	if question == "" || answer == "" {
		q, a, err := parseFAQContent(doc.RawContent)
		if err != nil {
			if strings.TrimSpace(doc.RawContent) == "" && question == "" && answer == "" {
				return []*Chunk{}, nil
			}
			return nil, kberrors.DocumentFormatError(doc.ID, "faq document missing question/answer structure", err)
		}
		if question == "" {
			question = q
		}
		if answer == "" {
			answer = a
		}
	}

	text := fmt.Sprintf("Q: %s\nA: %s", question, answer)
	embeddingText := fmt.Sprintf("Q: %s\nQ: %s\nA: %s", question, question, answer)

	meta := inheritMetadata(doc)
	meta["question"] = question
	meta["answer"] = answer
	meta["embedding_text"] = embeddingText

	return []*Chunk{{
		ID:         ChunkID(doc.ID, 0, doc.SourceHash),
		DocumentID: doc.ID,
		DocType:    doc.Type,
		Index:      0,
		Text:       text,
		TokenCount: c.counter.Count(text),
		Metadata:   meta,
	}}, nil
}

// parseFAQContent extracts a question/answer pair from raw "Q:/A:" lines.
func parseFAQContent(raw string) (question, answer string, err error) {
	var qLines, aLines []string
	current := &qLines
	seenQ, seenA := false, false

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case faqQuestionRe.MatchString(trimmed):
			seenQ = true
			current = &qLines
			*current = append(*current, faqQuestionRe.ReplaceAllString(trimmed, ""))
		case faqAnswerRe.MatchString(trimmed):
			seenA = true
			current = &aLines
			*current = append(*current, faqAnswerRe.ReplaceAllString(trimmed, ""))
		case trimmed != "":
			*current = append(*current, trimmed)
		}
	}

	if !seenQ || !seenA {
		return "", "", fmt.Errorf("no Q:/A: markers found")
	}
	return strings.Join(qLines, " "), strings.Join(aLines, " "), nil
}

// clauseRe matches numbered clause markers at the start of a line: Chinese
// ordinal clauses (第三条), enumerated headings (三、), and decimal numbering
// (2.1, 3)).
var clauseRe = regexp.MustCompile(`(?m)^[ \t]*(?:第[一二三四五六七八九十百零0-9]+[条章节款]|[一二三四五六七八九十]+、|[0-9]+(?:\.[0-9]+)*[、.．)）])`)

// chunkPolicy aligns chunk boundaries to numbered clause markers and prefixes
// each chunk with its section title.
func (c *Chunker) chunkPolicy(doc *Document) ([]*Chunk, error) {
	cfg := c.config[doc.Type]
	body := doc.RawContent
	title := strings.TrimSpace(doc.Metadata["title"])

	bounds := clauseRe.FindAllStringIndex(body, -1)
	if len(bounds) == 0 {
		// No clause structure; fall back to flat splitting under the doc title.
		segments := c.split(body, cfg.Separators, cfg.TargetTokens)
		segments = c.mergeTrailing(segments, cfg.MinTokens)
		return c.assemble(doc, segments, cfg, 0, title), nil
	}

	if title == "" {
		// Preamble's first non-empty line doubles as the document title.
		for _, line := range strings.Split(body[:bounds[0][0]], "\n") {
			if t := strings.TrimSpace(line); t != "" {
				title = t
				break
			}
		}
	}

	var chunks []*Chunk
	next := 0

	// Preamble before the first clause marker.
	if pre := body[:bounds[0][0]]; strings.TrimSpace(pre) != "" {
		segments := c.mergeTrailing(c.split(pre, cfg.Separators, cfg.TargetTokens), cfg.MinTokens)
		part := c.assemble(doc, segments, cfg, next, title)
		chunks = append(chunks, part...)
		next += len(part)
	}

	for i, b := range bounds {
		end := len(body)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		section := body[b[0]:end]
		heading := sectionHeading(section)
		sectionTitle := heading
		if title != "" && heading != "" {
			sectionTitle = title + " " + heading
		} else if sectionTitle == "" {
			sectionTitle = title
		}

		segments := c.mergeTrailing(c.split(section, cfg.Separators, cfg.TargetTokens), cfg.MinTokens)
		part := c.assemble(doc, segments, cfg, next, sectionTitle)
		chunks = append(chunks, part...)
		next += len(part)
	}

	return chunks, nil
}

// sectionHeading returns the first line of a clause section.
func sectionHeading(section string) string {
	line := section
	if i := strings.IndexByte(section, '\n'); i >= 0 {
		line = section[:i]
	}
	return strings.TrimSpace(line)
}

// split recursively divides text so each segment fits the token budget.
// It tries the first separator; oversized segments are re-split with the
// remaining separators. With no separators left it hard-truncates at the
// budget.
func (c *Chunker) split(text string, seps []string, budget int) []string {
	if c.counter.Count(text) <= budget {
		return []string{text}
	}
	if len(seps) == 0 {
		return c.hardSplit(text, budget)
	}

	parts := strings.SplitAfter(text, seps[0])
	if len(parts) == 1 {
		// Separator absent; try the next one.
		return c.split(text, seps[1:], budget)
	}

	var out []string
	var cur strings.Builder
	curTokens := 0
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curTokens = 0
		}
	}

	for _, part := range parts {
		if part == "" {
			continue
		}
		tokens := c.counter.Count(part)
		if tokens > budget {
			flush()
			out = append(out, c.split(part, seps[1:], budget)...)
			continue
		}
		if curTokens+tokens > budget {
			flush()
		}
		cur.WriteString(part)
		curTokens += tokens
	}
	flush()
	return out
}

// hardSplit cuts text into rune windows of at most budget tokens. Last
// resort when no separator permits further splitting.
func (c *Chunker) hardSplit(text string, budget int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		n := c.maxPrefix(runes, budget)
		if n == 0 {
			n = 1
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

// maxPrefix finds the longest rune prefix whose token count fits the budget.
func (c *Chunker) maxPrefix(runes []rune, budget int) int {
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.counter.Count(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// tailTokens returns the longest suffix of text with at most n tokens.
func (c *Chunker) tailTokens(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if c.counter.Count(text) <= n {
		return text
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	// Smallest start index whose suffix fits in n tokens.
	for lo < hi {
		mid := (lo + hi) / 2
		if c.counter.Count(string(runes[mid:])) <= n {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return string(runes[lo:])
}

// mergeTrailing folds a final fragment below minTokens into the previous
// segment.
func (c *Chunker) mergeTrailing(segments []string, minTokens int) []string {
	if minTokens <= 0 || len(segments) < 2 {
		return segments
	}
	last := segments[len(segments)-1]
	if c.counter.Count(last) < minTokens {
		segments[len(segments)-2] += last
		segments = segments[:len(segments)-1]
	}
	return segments
}

// assemble turns text segments into chunks: overlap prefixes, ids, metadata.
// startIndex offsets chunk indices when a document is assembled in parts
// (policy sections). sectionTitle, when set, prefixes continuation segments
// and is recorded on every chunk.
func (c *Chunker) assemble(doc *Document, segments []string, cfg TypeConfig, startIndex int, sectionTitle string) []*Chunk {
	chunks := make([]*Chunk, 0, len(segments))
	for i, seg := range segments {
		text := seg
		overlap := false
		if i > 0 && cfg.OverlapTokens > 0 {
			if tail := c.tailTokens(segments[i-1], cfg.OverlapTokens); tail != "" {
				text = tail + text
				overlap = true
			}
		}
		if sectionTitle != "" && i > 0 && !strings.HasPrefix(text, sectionTitle) {
			// Continuation chunks repeat the section title for context.
			text = sectionTitle + "\n" + text
		}

		idx := startIndex + i
		meta := inheritMetadata(doc)
		if sectionTitle != "" {
			meta["section"] = sectionTitle
		}

		chunks = append(chunks, &Chunk{
			ID:              ChunkID(doc.ID, idx, doc.SourceHash),
			DocumentID:      doc.ID,
			DocType:         doc.Type,
			Index:           idx,
			Text:            text,
			TokenCount:      c.counter.Count(text),
			OverlapWithPrev: overlap,
			SectionTitle:    sectionTitle,
			Metadata:        meta,
		})
	}
	return chunks
}

// inheritMetadata copies document metadata into a fresh chunk metadata map.
func inheritMetadata(doc *Document) map[string]string {
	meta := make(map[string]string, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["doc_type"] = string(doc.Type)
	return meta
}
