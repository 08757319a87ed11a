// Package svg validates uploaded SVG documents before conversion.
package svg

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ErrorKind classifies why a file was rejected.
type ErrorKind string

const (
	ErrKindExtension ErrorKind = "invalid_extension"
	ErrKindTooLarge  ErrorKind = "too_large"
	ErrKindMalformed ErrorKind = "malformed_document"
)

// ValidationError describes a rejected file. Size and Limit are only set for
// ErrKindTooLarge, Detail only for ErrKindMalformed.
type ValidationError struct {
	Kind   ErrorKind
	Size   int64
	Limit  int64
	Detail string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrKindExtension:
		return "only .svg files are accepted"
	case ErrKindTooLarge:
		return fmt.Sprintf("file too large: %d bytes (limit %d)", e.Size, e.Limit)
	case ErrKindMalformed:
		return fmt.Sprintf("not a valid SVG document: %s", e.Detail)
	default:
		return string(e.Kind)
	}
}

// DefaultMaxFileSize is the default upload ceiling (5 MiB).
const DefaultMaxFileSize = 5 * 1024 * 1024

// Validator checks uploaded files for extension, size, and SVG well-formedness.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a Validator with the given size ceiling.
// A non-positive limit falls back to DefaultMaxFileSize.
func NewValidator(maxFileSize int64) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Validator{maxFileSize: maxFileSize}
}

// MaxFileSize returns the configured upload ceiling in bytes.
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// CheckExtension verifies the filename ends with .svg, case-insensitively.
// It is split out so the upload handler can reject files before downloading.
func (v *Validator) CheckExtension(filename string) error {
	if !strings.HasSuffix(strings.ToLower(filename), ".svg") {
		return &ValidationError{Kind: ErrKindExtension}
	}
	return nil
}

// CheckSize verifies the declared size against the ceiling. Like
// CheckExtension it works on metadata alone, before any bytes are fetched.
func (v *Validator) CheckSize(size int64) error {
	if size > v.maxFileSize {
		return &ValidationError{Kind: ErrKindTooLarge, Size: size, Limit: v.maxFileSize}
	}
	return nil
}

// Validate runs all checks in order, short-circuiting on the first failure:
// extension, size ceiling, then structural well-formedness (the content must
// parse as XML whose root element's local name is "svg").
func (v *Validator) Validate(data []byte, filename string) error {
	if err := v.CheckExtension(filename); err != nil {
		return err
	}
	if err := v.CheckSize(int64(len(data))); err != nil {
		return err
	}
	return v.checkDocument(data)
}

func (v *Validator) checkDocument(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return &ValidationError{Kind: ErrKindMalformed, Detail: "no root element"}
		}
		if err != nil {
			return &ValidationError{Kind: ErrKindMalformed, Detail: err.Error()}
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !strings.EqualFold(start.Name.Local, "svg") {
			return &ValidationError{Kind: ErrKindMalformed, Detail: fmt.Sprintf("root element is <%s>, expected <svg>", start.Name.Local)}
		}
		// Consume the root's whole subtree so mismatched or unclosed tags
		// inside it are caught, not passed on to the converter.
		if err := dec.Skip(); err != nil {
			return &ValidationError{Kind: ErrKindMalformed, Detail: err.Error()}
		}
		return checkTrailer(dec)
	}
}

// checkTrailer rejects anything but whitespace, comments, and processing
// instructions after the root element closes.
func checkTrailer(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &ValidationError{Kind: ErrKindMalformed, Detail: err.Error()}
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return &ValidationError{Kind: ErrKindMalformed, Detail: "content after root element"}
			}
		case xml.Comment, xml.ProcInst:
		default:
			return &ValidationError{Kind: ErrKindMalformed, Detail: "content after root element"}
		}
	}
}
