package types

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

// Intake is the submitted research request
type Intake struct {
	ProfileReference   string      `json:"profile_reference" validate:"required,max=2048"`
	JobDescriptionText string      `json:"job_description_text" validate:"required"`
	Notes              string      `json:"notes,omitempty"`
	Attachment         *Attachment `json:"attachment,omitempty"`
}

// Attachment is an optional document (usually a resume) attached to the intake.
// The core treats the bytes as opaque.
type Attachment struct {
	Name     string `json:"name" validate:"required"`
	MimeType string `json:"mime_type" validate:"required"`
	Bytes    []byte `json:"-" validate:"required,min=1"`
}

// Size returns the attachment size in bytes
func (a *Attachment) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Bytes)
}

// Clone returns a deep copy of the intake
func (in Intake) Clone() Intake {
	if in.Attachment != nil {
		a := *in.Attachment
		a.Bytes = append([]byte(nil), in.Attachment.Bytes...)
		in.Attachment = &a
	}
	return in
}

// shareAttachment copies the intake and the attachment header but shares the
// attachment bytes, clipped so appends cannot reach the original. The bytes of
// a session's intake are never written after submission.
func (in Intake) shareAttachment() Intake {
	if in.Attachment != nil {
		a := *in.Attachment
		a.Bytes = a.Bytes[:len(a.Bytes):len(a.Bytes)]
		in.Attachment = &a
	}
	return in
}

// Accepted document MIME types
const (
	MimePDF  = "application/pdf"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DefaultMaxAttachmentBytes is the upload limit of the intake form (10 MiB)
const DefaultMaxAttachmentBytes = 10 << 20

// IntakeRules holds the attachment constraints enforced at the intake boundary
type IntakeRules struct {
	MaxAttachmentBytes int
	AcceptedMimeTypes  []string
}

// DefaultIntakeRules returns the rules of the original upload form: PDF, DOC, DOCX up to 10MB.
func DefaultIntakeRules() IntakeRules {
	return IntakeRules{
		MaxAttachmentBytes: DefaultMaxAttachmentBytes,
		AcceptedMimeTypes:  []string{MimePDF, MimeDOC, MimeDOCX},
	}
}

// FieldError is a single intake validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError indicates the intake was rejected before any session was created
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s - %s", f.Field, f.Message))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err is or wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	return v
}

// ValidateIntake checks required fields and the attachment constraints.
func ValidateIntake(in Intake, rules IntakeRules) error {
	var fields []FieldError

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Fields: []FieldError{{Field: "intake", Message: err.Error()}}}
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field:   strings.TrimPrefix(fe.Namespace(), "Intake."),
				Message: describeTag(fe),
			})
		}
	}

	if in.Attachment != nil && len(in.Attachment.Bytes) > 0 {
		fields = append(fields, checkAttachment(in.Attachment, rules)...)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must not be empty"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// documentContainers maps office types to the container they sniff as when the
// content detector cannot see inside, e.g. a DOCX without the usual entries.
var documentContainers = map[string]string{
	MimeDOCX: "application/zip",
	MimeDOC:  "application/x-ole-storage",
}

func checkAttachment(a *Attachment, rules IntakeRules) []FieldError {
	var fields []FieldError

	if rules.MaxAttachmentBytes > 0 && len(a.Bytes) > rules.MaxAttachmentBytes {
		fields = append(fields, FieldError{
			Field:   "attachment",
			Message: fmt.Sprintf("size %d exceeds maximum of %d bytes", len(a.Bytes), rules.MaxAttachmentBytes),
		})
	}

	if len(rules.AcceptedMimeTypes) == 0 {
		return fields
	}

	declared := strings.ToLower(strings.TrimSpace(a.MimeType))
	if !contains(rules.AcceptedMimeTypes, declared) {
		fields = append(fields, FieldError{
			Field:   "attachment.mime_type",
			Message: fmt.Sprintf("type %q is not accepted", a.MimeType),
		})
		return fields
	}

	detected := mimetype.Detect(a.Bytes)
	if !contentMatches(detected, declared) {
		fields = append(fields, FieldError{
			Field:   "attachment",
			Message: fmt.Sprintf("content looks like %s, not %s", detected.String(), declared),
		})
	}

	return fields
}

// contentMatches reports whether the sniffed content is compatible with the
// declared type: the declared type itself or one of its ancestors, or the bare
// container of a declared office document.
func contentMatches(detected *mimetype.MIME, declared string) bool {
	if mimeMatches(detected, []string{declared}) {
		return true
	}
	container, ok := documentContainers[declared]
	return ok && detected.Is(container)
}

// mimeMatches walks the detected type and its parents looking for an allowed type
func mimeMatches(detected *mimetype.MIME, allowed []string) bool {
	for m := detected; m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
