// Package export serializes a completed evaluation into a downloadable payload.
package export

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonathan/candidate-research/internal/types"
)

// Format is an export format
type Format string

// Recognized export formats
const (
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Formats lists every recognized format
func Formats() []Format {
	return []Format{FormatPDF, FormatJSON, FormatCSV}
}

// FormatNames joins the recognized formats for messages and flag help, e.g. "pdf|json|csv"
func FormatNames(sep string) string {
	names := make([]string, 0, len(Formats()))
	for _, f := range Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, sep)
}

// UnsupportedFormatError is returned for any format other than pdf, json or csv
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q (expected one of %s)", e.Format, FormatNames(", "))
}

// ParseFormat maps a user supplied name to a Format. Matching ignores case and surrounding spaces.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Formats(), f) {
		return f, nil
	}
	return "", &UnsupportedFormatError{Format: s}
}

// Document is what gets exported: the result plus enough context to identify it
type Document struct {
	SessionID        string                 `json:"session_id"`
	ProfileReference string                 `json:"profile_reference"`
	GeneratedAt      time.Time              `json:"generated_at"`
	Result           types.EvaluationResult `json:"result"`
}

// Payload is a serialized export
type Payload struct {
	Format      Format
	ContentType string
	Filename    string
	Data        []byte
}

// Serializer turns a document into a payload
type Serializer interface {
	Serialize(format Format, doc Document) (*Payload, error)
}

// SerializerFunc adapts a function to the Serializer interface
type SerializerFunc func(format Format, doc Document) (*Payload, error)

// Serialize calls f
func (f SerializerFunc) Serialize(format Format, doc Document) (*Payload, error) {
	return f(format, doc)
}

// Default is the built-in serializer for all three formats
var Default Serializer = SerializerFunc(Serialize)

// Serialize renders doc in the requested format
func Serialize(format Format, doc Document) (*Payload, error) {
	var (
		data        []byte
		contentType string
		err         error
	)

	switch format {
	case FormatJSON:
		data, err = renderJSON(doc)
		contentType = "application/json"
	case FormatCSV:
		data, err = renderCSV(doc)
		contentType = "text/csv; charset=utf-8"
	case FormatPDF:
		data, err = renderPDF(doc)
		contentType = "application/pdf"
	default:
		return nil, &UnsupportedFormatError{Format: string(format)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s export: %w", format, err)
	}

	return &Payload{
		Format:      format,
		ContentType: contentType,
		Filename:    Filename(doc.SessionID, format),
		Data:        data,
	}, nil
}

// Filename returns the suggested download name for a session export
func Filename(sessionID string, format Format) string {
	id := sessionID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		id = "session"
	}
	return fmt.Sprintf("candidate-research-%s.%s", id, format)
}
