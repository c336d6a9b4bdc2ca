package document

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// MIMEPDF is the only MIME type accepted for uploads.
	MIMEPDF = "application/pdf"

	dataURIScheme = "data:"
	pdfPrefix     = dataURIScheme + MIMEPDF
)

var ErrInvalidDataURI = errors.New("invalid data URI")

// Descriptor pairs a user-supplied file name with its encoded content.
// Content is either a data URI or plain extracted text.
type Descriptor struct {
	ID       string `json:"id,omitempty"`
	FileName string `json:"fileName" validate:"required"`
	Content  string `json:"contentDataUri" validate:"required"`
}

// IsPDF reports whether content is a PDF data URI. Only the prefix is inspected.
func IsPDF(content string) bool {
	return strings.HasPrefix(content, pdfPrefix)
}

// IsDataURI reports whether content uses the data: scheme.
func IsDataURI(content string) bool {
	return strings.HasPrefix(content, dataURIScheme)
}

// DataURI is a decoded data: URI.
type DataURI struct {
	MIMEType string
	Data     []byte
}

// EncodeDataURI renders data as data:<mime>;base64,<payload>.
func EncodeDataURI(mimeType string, data []byte) string {
	return dataURIScheme + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI decodes data:<mime>[;param...][;base64],<payload>.
func ParseDataURI(s string) (DataURI, error) {
	if !IsDataURI(s) {
		return DataURI{}, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}
	header, payload, ok := strings.Cut(s[len(dataURIScheme):], ",")
	if !ok {
		return DataURI{}, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	params := strings.Split(header, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	encoded := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			encoded = true
		}
	}

	if !encoded {
		return DataURI{MIMEType: mimeType, Data: []byte(payload)}, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return DataURI{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return DataURI{MIMEType: mimeType, Data: data}, nil
}

// DecodedSize returns the number of payload bytes in content without
// fully decoding it. Plain text is measured as-is.
func DecodedSize(content string) int64 {
	if !IsDataURI(content) {
		return int64(len(content))
	}
	header, payload, ok := strings.Cut(content, ",")
	if !ok {
		return 0
	}
	if strings.Contains(strings.ToLower(header), ";base64") {
		return int64(base64.RawStdEncoding.DecodedLen(len(strings.TrimRight(payload, "="))))
	}
	return int64(len(payload))
}

// Text returns the literal text carried by content: either the content itself
// when it is not a data URI, or the payload of a text/* data URI.
func Text(content string) (string, bool) {
	if !IsDataURI(content) {
		return content, true
	}
	uri, err := ParseDataURI(content)
	if err != nil || !strings.HasPrefix(uri.MIMEType, "text/") {
		return "", false
	}
	return string(uri.Data), true
}
