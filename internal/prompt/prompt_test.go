package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contract-insights/internal/document"
)

var pdfBytes = []byte("%PDF-1.4 lease")

func pdfDoc(name string) document.Descriptor {
	return document.Descriptor{FileName: name, Content: document.EncodeDataURI(document.MIMEPDF, pdfBytes)}
}

func TestBuildChatNoContracts(t *testing.T) {
	for _, policy := range []ContentPolicy{PolicyPlainText, PolicyInlineMedia} {
		t.Run(policy.String(), func(t *testing.T) {
			p := BuildChat("What is the payment term?", nil, policy)
			text := p.Text()

			assert.Contains(t, text, NoContractsNotice())
			assert.NotContains(t, text, "Contract Filename:")
			assert.Empty(t, p.Media())
			assert.True(t, strings.HasSuffix(text, "User's Question: What is the payment term?\n\n"+ChatMarker))
		})
	}
}

func TestBuildChatHeadersInOrder(t *testing.T) {
	docs := []document.Descriptor{
		pdfDoc("lease.pdf"),
		{FileName: "notes.txt", Content: "Delivery within 14 days."},
		pdfDoc("supply.pdf"),
	}

	for _, policy := range []ContentPolicy{PolicyPlainText, PolicyInlineMedia} {
		t.Run(policy.String(), func(t *testing.T) {
			text := BuildChat("Who are the parties?", docs, policy).Text()

			assert.Equal(t, len(docs), strings.Count(text, "Contract Filename: "))
			assert.NotContains(t, text, NoContractsNotice())

			last := -1
			for _, d := range docs {
				idx := strings.Index(text, FilenameHeader(d.FileName)+"\n")
				require.Greater(t, idx, last, "header for %s out of order", d.FileName)
				last = idx
			}
		})
	}
}

func TestBuildChatPDFInlineMedia(t *testing.T) {
	p := BuildChat("What is the payment term?", []document.Descriptor{pdfDoc("lease.pdf")}, PolicyInlineMedia)
	text := p.Text()

	assert.Contains(t, text, "Contract Filename: lease.pdf\nContract Content:\n[media: lease.pdf (application/pdf)]\n---\n")
	assert.NotContains(t, text, "[Content for lease.pdf")

	media := p.Media()
	require.Len(t, media, 1)
	assert.Equal(t, "lease.pdf", media[0].FileName)
	assert.Equal(t, document.MIMEPDF, media[0].MIMEType)
	assert.Equal(t, pdfBytes, media[0].Data)
}

func TestBuildChatContentBranches(t *testing.T) {
	tests := []struct {
		name    string
		doc     document.Descriptor
		policy  ContentPolicy
		want    string
		noMedia bool
	}{
		{
			name:    "pdf under plain text gets placeholder",
			doc:     pdfDoc("lease.pdf"),
			policy:  PolicyPlainText,
			want:    Placeholder("lease.pdf", PolicyPlainText),
			noMedia: true,
		},
		{
			name:    "raw text is inlined",
			doc:     document.Descriptor{FileName: "terms.txt", Content: "Price: 100 EUR per unit."},
			policy:  PolicyPlainText,
			want:    "Contract Content:\nPrice: 100 EUR per unit.\n---",
			noMedia: true,
		},
		{
			name:    "text data uri is inlined",
			doc:     document.Descriptor{FileName: "terms.txt", Content: document.EncodeDataURI("text/plain", []byte("Term: 12 months"))},
			policy:  PolicyInlineMedia,
			want:    "Contract Content:\nTerm: 12 months\n---",
			noMedia: true,
		},
		{
			name:    "non pdf binary under inline media gets placeholder",
			doc:     document.Descriptor{FileName: "scan.png", Content: document.EncodeDataURI("image/png", []byte{0x89, 0x50})},
			policy:  PolicyInlineMedia,
			want:    Placeholder("scan.png", PolicyInlineMedia),
			noMedia: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildChat("q", []document.Descriptor{tt.doc}, tt.policy)
			assert.Contains(t, p.Text(), tt.want)
			if tt.noMedia {
				assert.Empty(t, p.Media())
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	docs := []document.Descriptor{pdfDoc("a.pdf"), {FileName: "b.txt", Content: "text"}}

	first := BuildChat("q", docs, PolicyInlineMedia)
	second := BuildChat("q", docs, PolicyInlineMedia)
	assert.Equal(t, first.Text(), second.Text())
	assert.Equal(t, first, second)

	s1 := BuildSummary(docs[0], PolicyPlainText)
	s2 := BuildSummary(docs[0], PolicyPlainText)
	assert.Equal(t, s1.Text(), s2.Text())
}

func TestBuildSummary(t *testing.T) {
	p := BuildSummary(pdfDoc("lease.pdf"), PolicyInlineMedia)
	text := p.Text()

	for _, term := range []string{"pricing", "delivery terms", "duration", "parties"} {
		assert.Contains(t, text, term)
	}
	assert.Contains(t, text, "Contract Filename: lease.pdf")
	assert.Len(t, p.Media(), 1)
	assert.Equal(t, SummaryMarker, p.Marker)
	assert.True(t, strings.HasSuffix(text, SummaryMarker))
}

func TestChatPromptSystemInstruction(t *testing.T) {
	text := BuildChat("q", nil, PolicyPlainText).Text()
	for _, want := range []string{
		"based *only* on the information contained within these documents",
		"state that explicitly",
		"Do not make assumptions or use external knowledge",
		"pricing, delivery terms, duration, and the parties involved",
	} {
		assert.Contains(t, text, want)
	}
}

func TestSegmentsInterleaveTextAndMedia(t *testing.T) {
	docs := []document.Descriptor{pdfDoc("a.pdf"), pdfDoc("b.pdf")}
	p := BuildChat("q", docs, PolicyInlineMedia)

	var kinds []string
	for _, s := range p.Segments {
		if s.Media != nil {
			kinds = append(kinds, "media:"+s.Media.FileName)
		} else {
			kinds = append(kinds, "text")
		}
	}
	assert.Equal(t, []string{"text", "media:a.pdf", "text", "media:b.pdf", "text"}, kinds)
	assert.Equal(t, ChatMarker, p.Marker)
}
