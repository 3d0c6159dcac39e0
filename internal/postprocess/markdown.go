package postprocess

import (
	"bufio"
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/rohmanhakim/sitecrawl/internal/mdconvert"
	"github.com/rohmanhakim/sitecrawl/internal/registry"
	"github.com/rohmanhakim/sitecrawl/pkg/failure"
)

// MarkdownProcessor wraps an mdconvert.ConvertRule, turning a page's
// sanitized DOM into markdown, and - when the page's Lineage is FAQ -
// additionally lifting heading/paragraph pairs out of the converted
// markdown as FAQItem question/answer pairs.
type MarkdownProcessor struct {
	convertRule mdconvert.ConvertRule
}

func NewMarkdownProcessor(convertRule mdconvert.ConvertRule) *MarkdownProcessor {
	return &MarkdownProcessor{convertRule: convertRule}
}

func (p *MarkdownProcessor) Kind() string {
	return "markdown"
}

func (p *MarkdownProcessor) Accept(meta ContentMeta) bool {
	return strings.Contains(strings.ToLower(meta.ContentType), "html")
}

func (p *MarkdownProcessor) Process(htmlDoc *html.Node, meta ContentMeta) (Result, failure.ClassifiedError) {
	conversionResult, err := p.convertRule.Convert(htmlDoc)
	if err != nil {
		return Result{}, &PostprocessError{Message: err.Error(), Retryable: false, Cause: ErrCauseConversionFailure}
	}

	content := conversionResult.GetMarkdownContent()
	result := Result{MarkdownContent: content}

	if meta.Lineage == registry.LineageFAQ {
		result.FAQItems = extractFAQItems(content)
	}

	return result, nil
}

// extractFAQItems walks converted markdown line by line, treating every
// ATX heading ("#".."######") as a question and the non-blank paragraph
// lines immediately following it (up to the next heading) as its answer.
// Pages whose headings aren't phrased as questions still produce an item -
// the registry stores whatever text was found, it does not filter on
// question-mark presence.
func extractFAQItems(content []byte) []registry.FAQItem {
	var items []registry.FAQItem
	var currentQuestion string
	var answerLines []string

	flush := func() {
		if currentQuestion == "" {
			return
		}
		answer := strings.TrimSpace(strings.Join(answerLines, "\n"))
		if answer == "" {
			currentQuestion = ""
			answerLines = nil
			return
		}
		items = append(items, registry.FAQItem{
			Question:   currentQuestion,
			Answer:     answer,
			AnswerMode: "heading-pair",
		})
		currentQuestion = ""
		answerLines = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if isATXHeading(trimmed) {
			flush()
			currentQuestion = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}
		if trimmed == "" {
			continue
		}
		if currentQuestion != "" {
			answerLines = append(answerLines, trimmed)
		}
	}
	flush()

	return items
}

func isATXHeading(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	return i <= 6 && i < len(line)
}
