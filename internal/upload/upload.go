package upload

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"contract-insights/internal/document"
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrNotPDF       = errors.New("not a PDF")
	ErrMalformedPDF = errors.New("malformed PDF")
	ErrEmptyFile    = errors.New("empty file")
)

// File is one uploaded file before validation.
type File struct {
	Name     string
	MIMEType string // declared type; may be empty
	Data     []byte
}

// Result is a validated upload ready to be sent to the services.
type Result struct {
	Descriptor document.Descriptor
	Pages      int
}

// FileError ties a validation failure to the offending file.
type FileError struct {
	FileName string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file %q: %v", e.FileName, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Validator enforces the PDF-only filter and the per-file size ceiling.
type Validator struct {
	MaxFileSize int64
}

// Validate checks a single file and encodes it as a PDF data URI descriptor.
func (v Validator) Validate(f File) (Result, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = "unnamed.pdf"
	}
	if len(f.Data) == 0 {
		return Result{}, &FileError{FileName: name, Err: ErrEmptyFile}
	}
	if v.MaxFileSize > 0 && int64(len(f.Data)) > v.MaxFileSize {
		return Result{}, &FileError{FileName: name, Err: fmt.Errorf("%w: exceeds %s", ErrFileTooLarge, humanSize(v.MaxFileSize))}
	}
	if detectMIME(name, f.MIMEType) != document.MIMEPDF {
		return Result{}, &FileError{FileName: name, Err: ErrNotPDF}
	}
	pages, err := countPages(f.Data)
	if err != nil {
		return Result{}, &FileError{FileName: name, Err: fmt.Errorf("%w: %v", ErrMalformedPDF, err)}
	}
	return Result{
		Descriptor: document.Descriptor{
			ID:       uuid.NewString(),
			FileName: name,
			Content:  document.EncodeDataURI(document.MIMEPDF, f.Data),
		},
		Pages: pages,
	}, nil
}

// ValidateAll validates files independently; a bad file does not stop the rest.
func (v Validator) ValidateAll(files []File) ([]Result, []*FileError) {
	var (
		results []Result
		failed  []*FileError
	)
	for _, f := range files {
		res, err := v.Validate(f)
		if err != nil {
			var fe *FileError
			if !errors.As(err, &fe) {
				fe = &FileError{FileName: f.Name, Err: err}
			}
			failed = append(failed, fe)
			continue
		}
		results = append(results, res)
	}
	return results, failed
}

// ReadFile loads a file from disk, inferring its MIME type from the extension.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:     filepath.Base(path),
		MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Data:     data,
	}, nil
}

// detectMIME normalizes the declared type and falls back to the file extension.
func detectMIME(name, declared string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
		return strings.ToLower(strings.TrimSpace(declared))
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return document.MIMEPDF
	}
	return ""
}

// countPages opens the document to check its structure. No text is extracted.
func countPages(data []byte) (n int, err error) {
	// the pdf reader panics on some truncated inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	n = r.NumPage()
	if n <= 0 {
		return 0, errors.New("document has no pages")
	}
	return n, nil
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
