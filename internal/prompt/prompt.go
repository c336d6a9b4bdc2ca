package prompt

import (
	"fmt"
	"strings"

	"contract-insights/internal/document"
)

// ContentPolicy selects how document content is embedded. It is fixed per
// backend variant, never negotiated at runtime.
type ContentPolicy int

const (
	// PolicyPlainText inlines text content and replaces binary content with a notice.
	PolicyPlainText ContentPolicy = iota
	// PolicyInlineMedia attaches PDF data URIs as media parts.
	PolicyInlineMedia
)

func (p ContentPolicy) String() string {
	switch p {
	case PolicyInlineMedia:
		return "inline-media"
	default:
		return "plain-text"
	}
}

// Answer markers terminate the prompts. Backends that echo their input return
// the prompt followed by the marker and the answer.
const (
	ChatMarker    = "AI Response:"
	SummaryMarker = "Summary:"
)

const (
	chatPreamble = `You are a helpful AI assistant specializing in contract analysis.
You have been provided with the following contract(s). Your task is to answer the user's question based *only* on the information contained within these documents.
If the information is not found in the contracts, state that explicitly. Do not make assumptions or use external knowledge.
When asked for a summary, cover pricing, delivery terms, duration, and the parties involved.`

	noContractsNotice = `No contracts have been provided. You can inform the user to upload contracts if their question implies they expect you to have some.`

	summaryPreamble = `You are an expert legal contract summarizer.
Please provide a concise summary of the key terms of the following contract, including but not limited to: pricing, delivery terms, duration, and the parties involved.
Use only the information contained in the contract. If a term is not present, say so explicitly.`

	filenameHeader = "Contract Filename: "
	contentHeader  = "Contract Content:"
	separator      = "---"
)

// NoContractsNotice is embedded when a chat carries no documents.
func NoContractsNotice() string { return noContractsNotice }

// FilenameHeader returns the per-document header line.
func FilenameHeader(fileName string) string { return filenameHeader + fileName }

// Media is binary content attached to a prompt.
type Media struct {
	FileName string
	MIMEType string
	Data     []byte
}

// Segment is either text or media.
type Segment struct {
	Text  string
	Media *Media
}

// Prompt is an ordered sequence of segments. Text-only backends use Text().
type Prompt struct {
	Segments []Segment
	Marker   string
}

// Text renders the prompt. Media segments are rendered as references.
func (p Prompt) Text() string {
	var b strings.Builder
	for _, s := range p.Segments {
		if s.Media != nil {
			fmt.Fprintf(&b, "[media: %s (%s)]", s.Media.FileName, s.Media.MIMEType)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Media returns the attached media in order.
func (p Prompt) Media() []Media {
	var out []Media
	for _, s := range p.Segments {
		if s.Media != nil {
			out = append(out, *s.Media)
		}
	}
	return out
}

type builder struct {
	segments []Segment
	text     strings.Builder
}

func (b *builder) line(s string) {
	b.text.WriteString(s)
	b.text.WriteByte('\n')
}

func (b *builder) media(m Media) {
	b.flush()
	b.segments = append(b.segments, Segment{Media: &m})
	b.text.WriteByte('\n')
}

func (b *builder) flush() {
	if b.text.Len() == 0 {
		return
	}
	b.segments = append(b.segments, Segment{Text: b.text.String()})
	b.text.Reset()
}

func (b *builder) done(marker string) Prompt {
	b.text.WriteString(marker)
	b.flush()
	return Prompt{Segments: b.segments, Marker: marker}
}

// content emits one of: a media reference, literal text, or a placeholder.
func (b *builder) content(doc document.Descriptor, policy ContentPolicy) {
	if policy == PolicyInlineMedia && document.IsPDF(doc.Content) {
		if uri, err := document.ParseDataURI(doc.Content); err == nil {
			b.media(Media{FileName: doc.FileName, MIMEType: uri.MIMEType, Data: uri.Data})
			return
		}
	}
	if text, ok := document.Text(doc.Content); ok && strings.TrimSpace(text) != "" {
		b.line(strings.TrimRight(text, "\n"))
		return
	}
	b.line(Placeholder(doc.FileName, policy))
}

// Placeholder is the notice used when content cannot be given to the model.
func Placeholder(fileName string, policy ContentPolicy) string {
	if policy == PolicyInlineMedia {
		return fmt.Sprintf("[Content for %s. This is not a PDF. Display content as plain text if available.]", fileName)
	}
	return fmt.Sprintf("[Content for %s. Text extraction is not available for this document.]", fileName)
}

// BuildChat renders the chat prompt for a query over documents.
func BuildChat(userQuery string, docs []document.Descriptor, policy ContentPolicy) Prompt {
	var b builder
	b.line(chatPreamble)
	b.line("")
	if len(docs) == 0 {
		b.line(noContractsNotice)
	} else {
		b.line("Here are the contracts:")
		for _, doc := range docs {
			b.line(FilenameHeader(doc.FileName))
			b.line(contentHeader)
			b.content(doc, policy)
			b.line(separator)
		}
	}
	b.line("")
	b.line("User's Question: " + userQuery)
	b.line("")
	return b.done(ChatMarker)
}

// BuildSummary renders the summarization prompt for a single document.
func BuildSummary(doc document.Descriptor, policy ContentPolicy) Prompt {
	var b builder
	b.line(summaryPreamble)
	b.line("")
	if doc.FileName != "" {
		b.line(FilenameHeader(doc.FileName))
	}
	b.line(contentHeader)
	b.content(doc, policy)
	b.line("")
	return b.done(SummaryMarker)
}
