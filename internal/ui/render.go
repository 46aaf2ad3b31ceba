// Package ui renders search results and index summaries for the terminal,
// colored on a TTY and plain otherwise.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/angeless/travelcs/internal/chunk"
	"github.com/angeless/travelcs/internal/index"
	"github.com/angeless/travelcs/internal/search"
)

// Renderer formats output for one writer.
type Renderer struct {
	w      io.Writer
	styles Styles
}

// NewRenderer creates a renderer, picking colored or plain styles based
// on whether w is a terminal.
func NewRenderer(w io.Writer) *Renderer {
	styles := NoColorStyles()
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		styles = DefaultStyles()
	}
	return &Renderer{w: w, styles: styles}
}

// NewPlainRenderer creates a renderer that never colors.
func NewPlainRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w, styles: NoColorStyles()}
}

// docTypeBadge maps a document type to its display tag.
func docTypeBadge(dt chunk.DocType) string {
	switch dt {
	case chunk.DocTypeProduct:
		return "[产品]"
	case chunk.DocTypeFAQ:
		return "[FAQ]"
	case chunk.DocTypePolicy:
		return "[政策]"
	default:
		return "[文档]"
	}
}

// SearchResults renders a ranked result list.
func (r *Renderer) SearchResults(query string, results []*search.ScoredChunk) {
	if len(results) == 0 {
		fmt.Fprintln(r.w, r.styles.Dim.Render(fmt.Sprintf("没有找到与 %q 相关的内容", query)))
		return
	}

	fmt.Fprintln(r.w, r.styles.Header.Render(fmt.Sprintf("%q 的检索结果：", query)))
	fmt.Fprintln(r.w)

	for i, res := range results {
		header := fmt.Sprintf("%d. %s %s",
			i+1,
			r.styles.Badge.Render(docTypeBadge(res.Chunk.DocType)),
			r.styles.Title.Render(res.Chunk.DocumentID))
		if res.Chunk.SectionTitle != "" {
			header += " " + r.styles.Label.Render(res.Chunk.SectionTitle)
		}
		fmt.Fprintln(r.w, header)

		fmt.Fprintln(r.w, r.styles.Score.Render(fmt.Sprintf(
			"   score %.3f (semantic %.3f, keyword %.3f)",
			res.Score, res.SemanticScore, res.KeywordScore)))

		for _, line := range strings.Split(snippet(res.Chunk.Text, 160), "\n") {
			fmt.Fprintf(r.w, "   %s\n", line)
		}
		if len(res.MatchedTerms) > 0 {
			fmt.Fprintln(r.w, r.styles.Dim.Render("   命中："+strings.Join(res.MatchedTerms, "、")))
		}
		fmt.Fprintln(r.w)
	}
}

// IndexSummary renders the outcome of a reindex run.
func (r *Renderer) IndexSummary(result *index.Result) {
	if result.NoChanges {
		fmt.Fprintln(r.w, r.styles.Dim.Render("没有检测到文档变更"))
		return
	}

	fmt.Fprintln(r.w, r.styles.Success.Render(fmt.Sprintf("索引版本 %s 已生效", result.VersionID)))
	fmt.Fprintf(r.w, "  %s %d  %s %d  %s %d  %s %d\n",
		r.styles.Label.Render("新增"), result.Added,
		r.styles.Label.Render("修改"), result.Modified,
		r.styles.Label.Render("删除"), result.Deleted,
		r.styles.Label.Render("分块"), result.ChunksStaged)
	if len(result.FailedDocs) > 0 {
		fmt.Fprintln(r.w, r.styles.Warning.Render(
			"  跳过的文档: "+strings.Join(result.FailedDocs, ", ")))
	}
	fmt.Fprintln(r.w, r.styles.Dim.Render(fmt.Sprintf("  耗时 %s", result.Duration.Round(time.Millisecond))))
}

// Error renders an error line.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.w, r.styles.Error.Render("错误: "+err.Error()))
}

// snippet truncates text to max runes on a single logical block.
func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
