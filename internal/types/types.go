// Package types defines core data types and error codes for the classical-text portal editor.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Config holds the application configuration
type Config struct {
	APIBaseURL        string  `json:"api_base_url"`
	APIToken          string  `json:"api_token"`           // bearer token used for authenticated updates
	RequestTimeout    int     `json:"request_timeout"`     // seconds
	RequestsPerSecond float64 `json:"requests_per_second"` // 0 disables pacing
	OpenAIAPIKey      string  `json:"openai_api_key"`
	OpenAIBaseURL     string  `json:"openai_base_url"` // OpenAI compatible API base URL
	OpenAIModel       string  `json:"openai_model"`
	LogFile           string  `json:"log_file"`
	LogLevel          string  `json:"log_level"` // debug, info, warn, error
}

// DocumentID is a document identifier. The API sends it either as a JSON
// string or as a JSON number; both decode to the same string form.
type DocumentID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *DocumentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = DocumentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("document id must be a string or number: %w", err)
	}
	*id = DocumentID(n.String())
	return nil
}

// Annotation is a note attached to a span of a page's text.
// ID is nil until the annotation has been persisted by the API.
type Annotation struct {
	ID         *int64 `json:"id,omitempty"`
	TargetText string `json:"target_text"`
	Type       string `json:"type"`
	Content    string `json:"content"`
}

// AnnotationField names an editable field of an Annotation
type AnnotationField string

const (
	FieldTargetText AnnotationField = "target_text"
	FieldType       AnnotationField = "type"
	FieldContent    AnnotationField = "content"
)

// Page is one transcribed page. ID is 1-based and equals its array position + 1.
type Page struct {
	ID            int          `json:"id"`
	Text          string       `json:"text"`
	JPTranslation string       `json:"jp_translation"`
	Annotations   []Annotation `json:"annotations"`
}

// Thumbnail is a rendered preview image of one page
type Thumbnail struct {
	PageNumber int    `json:"page_number"`
	ImagePath  string `json:"image_path"`
}

// Document is the detail record returned by GET /doc-detail/{id}
type Document struct {
	ID         DocumentID  `json:"id"`
	Title      string      `json:"title"`
	Type       int         `json:"type"`
	Pages      []Page      `json:"pages"`
	Thumbnails []Thumbnail `json:"thumbnails"`
}

// IsPDF reports whether the document file is rendered by the PDF widget.
// Any other title is shown as an image.
func (d *Document) IsPDF() bool {
	return IsPDFTitle(d.Title)
}

// IsPDFTitle reports whether a document title names a PDF file
func IsPDFTitle(title string) bool {
	return strings.HasSuffix(strings.ToLower(title), ".pdf")
}

// DocumentSummary is one entry of GET /doc-list
type DocumentSummary struct {
	ID     DocumentID `json:"id"`
	UserID DocumentID `json:"user_id"`
	Title  string     `json:"title"`
	Type   int        `json:"type"`
}

// MatchKind tells which field of a page a search match came from
type MatchKind string

const (
	MatchText              MatchKind = "text"
	MatchTranslation       MatchKind = "translation"
	MatchAnnotationName    MatchKind = "annotation_name"
	MatchAnnotationType    MatchKind = "annotation_type"
	MatchAnnotationContent MatchKind = "annotation_content"
)

// Match is one highlighted context snippet
type Match struct {
	Type    MatchKind `json:"type,omitempty"`
	Context string    `json:"context"`
}

// PageMatches groups the matches found on one page
type PageMatches struct {
	PageNumber int     `json:"page_number"`
	Matches    []Match `json:"matches"`
}

// SearchMatches holds title and page matches of one document
type SearchMatches struct {
	TitleMatches []Match       `json:"title_matches,omitempty"`
	PageMatches  []PageMatches `json:"page_matches,omitempty"`
}

// SearchResult is one document hit of GET /search
type SearchResult struct {
	ID            DocumentID    `json:"id"`
	UserID        DocumentID    `json:"user_id"`
	DocumentTitle string        `json:"document_title"`
	TotalMatches  int           `json:"total_matches"`
	Matches       SearchMatches `json:"matches"`
}

// User is the account record returned on login
type User struct {
	ID    DocumentID `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  string     `json:"role"`
}

// NotificationVariant is the toast style
type NotificationVariant string

const (
	VariantDefault     NotificationVariant = "default"
	VariantDestructive NotificationVariant = "destructive"
)

// Notification is a transient user-visible message (toast)
type Notification struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Variant     NotificationVariant `json:"variant"`
}

// ErrorCode classifies an AppError
type ErrorCode string

const (
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrAPI          ErrorCode = "API_ERROR"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotLoaded    ErrorCode = "NOT_LOADED"
	ErrPDF          ErrorCode = "PDF_ERROR"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrTranslation  ErrorCode = "TRANSLATION_ERROR"
)

// AppError is the error type returned across packages
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// HasCode reports whether err wraps an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
