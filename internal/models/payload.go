package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ErrUnknownResourceType is returned when decoding a payload for a type outside the closed set.
var ErrUnknownResourceType = errors.New("unknown resource type")

// FieldError describes one violated constraint.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return e.Field + " " + e.Reason
}

// Payload is the type specific part of a resource.
type Payload interface {
	// Type returns the resource type this payload backs.
	Type() ResourceType

	// Validate returns every violated constraint, or nil.
	Validate() []FieldError

	// SerializeForRevision returns the tracked content used for revision snapshots.
	// Output must be deterministic for equal content.
	SerializeForRevision() ([]byte, error)

	// Artifacts returns storage keys of external state owned by the payload.
	Artifacts() []string
}

// SubmissionSource is implemented by payloads that collect user-submitted data.
type SubmissionSource interface {
	Submissions() int64
}

// Downloadable is implemented by payloads with a download counter.
type Downloadable interface {
	Downloads() int64
}

// Page is a single page of a lead form.
type Page struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// PresentationObject is an element placed on a page.
type PresentationObject struct {
	ID     string            `json:"id"`
	PageID string            `json:"page_id"`
	Kind   string            `json:"kind"`
	Data   map[string]string `json:"data,omitempty"`
}

// LeadPayload backs lead (form) resources.
type LeadPayload struct {
	Pages               []Page               `json:"pages"`
	PresentationObjects []PresentationObject `json:"presentation_objects"`
	AttachmentKeys      []string             `json:"attachment_keys,omitempty"`
	SubmissionCount     int64                `json:"submission_count"`
	DownloadsCount      int64                `json:"downloads_count"`
}

func (p *LeadPayload) Type() ResourceType { return ResourceTypeLead }

func (p *LeadPayload) Validate() []FieldError {
	var errs []FieldError
	pages := make(map[string]bool, len(p.Pages))
	for _, page := range p.Pages {
		if page.ID == "" {
			errs = append(errs, FieldError{Field: "pages", Reason: "page id is required"})
			continue
		}
		pages[page.ID] = true
	}
	for _, obj := range p.PresentationObjects {
		if !pages[obj.PageID] {
			errs = append(errs, FieldError{Field: "presentation_objects", Reason: fmt.Sprintf("object %q references unknown page %q", obj.ID, obj.PageID)})
		}
	}
	if p.SubmissionCount < 0 {
		errs = append(errs, FieldError{Field: "submission_count", Reason: "must not be negative"})
	}
	return errs
}

func (p *LeadPayload) SerializeForRevision() ([]byte, error) {
	return json.Marshal(struct {
		Pages               []Page               `json:"pages"`
		PresentationObjects []PresentationObject `json:"presentation_objects"`
	}{p.Pages, p.PresentationObjects})
}

func (p *LeadPayload) Artifacts() []string { return p.AttachmentKeys }
func (p *LeadPayload) Submissions() int64  { return p.SubmissionCount }
func (p *LeadPayload) Downloads() int64    { return p.DownloadsCount }

// EBookPayload backs ebook resources.
type EBookPayload struct {
	DocumentKey    string `json:"document_key"`
	PageCount      int    `json:"page_count"`
	DownloadsCount int64  `json:"downloads_count"`
}

func (p *EBookPayload) Type() ResourceType { return ResourceTypeEBook }

func (p *EBookPayload) Validate() []FieldError {
	var errs []FieldError
	if p.DocumentKey == "" {
		errs = append(errs, FieldError{Field: "document_key", Reason: "is required"})
	}
	if p.PageCount < 0 {
		errs = append(errs, FieldError{Field: "page_count", Reason: "must not be negative"})
	}
	return errs
}

func (p *EBookPayload) SerializeForRevision() ([]byte, error) {
	return json.Marshal(struct {
		DocumentKey string `json:"document_key"`
		PageCount   int    `json:"page_count"`
	}{p.DocumentKey, p.PageCount})
}

func (p *EBookPayload) Artifacts() []string {
	if p.DocumentKey == "" {
		return nil
	}
	return []string{p.DocumentKey}
}

func (p *EBookPayload) Downloads() int64 { return p.DownloadsCount }

// Scene3DPayload backs 3D scene resources.
type Scene3DPayload struct {
	ModelKey   string   `json:"model_key"`
	SceneTypes []string `json:"scene_types,omitempty"`
}

func (p *Scene3DPayload) Type() ResourceType { return ResourceTypeScene3D }

func (p *Scene3DPayload) Validate() []FieldError {
	if p.ModelKey == "" {
		return []FieldError{{Field: "model_key", Reason: "is required"}}
	}
	return nil
}

func (p *Scene3DPayload) SerializeForRevision() ([]byte, error) { return json.Marshal(p) }

func (p *Scene3DPayload) Artifacts() []string {
	if p.ModelKey == "" {
		return nil
	}
	return []string{p.ModelKey}
}

// LinkPayload backs link resources.
type LinkPayload struct {
	URL string `json:"url"`
}

func (p *LinkPayload) Type() ResourceType { return ResourceTypeLink }

func (p *LinkPayload) Validate() []FieldError {
	if p.URL == "" {
		return []FieldError{{Field: "url", Reason: "is required"}}
	}
	u, err := url.Parse(p.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []FieldError{{Field: "url", Reason: "must be an absolute URL"}}
	}
	return nil
}

func (p *LinkPayload) SerializeForRevision() ([]byte, error) { return json.Marshal(p) }
func (p *LinkPayload) Artifacts() []string                   { return nil }

// Slide is a single slide of a presentation.
type Slide struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageKey string `json:"image_key,omitempty"`
}

// PresenterPayload backs presentation resources.
type PresenterPayload struct {
	Slides []Slide `json:"slides"`
}

func (p *PresenterPayload) Type() ResourceType { return ResourceTypePresenter }

func (p *PresenterPayload) Validate() []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(p.Slides))
	for _, s := range p.Slides {
		if s.ID == "" {
			errs = append(errs, FieldError{Field: "slides", Reason: "slide id is required"})
			continue
		}
		if seen[s.ID] {
			errs = append(errs, FieldError{Field: "slides", Reason: fmt.Sprintf("duplicate slide id %q", s.ID)})
		}
		seen[s.ID] = true
	}
	return errs
}

func (p *PresenterPayload) SerializeForRevision() ([]byte, error) { return json.Marshal(p) }

func (p *PresenterPayload) Artifacts() []string {
	var keys []string
	for _, s := range p.Slides {
		if s.ImageKey != "" {
			keys = append(keys, s.ImageKey)
		}
	}
	return keys
}

// NewPayload allocates an empty payload for the given type.
func NewPayload(t ResourceType) (Payload, error) {
	switch t {
	case ResourceTypeLead:
		return &LeadPayload{}, nil
	case ResourceTypeEBook:
		return &EBookPayload{}, nil
	case ResourceTypeScene3D:
		return &Scene3DPayload{}, nil
	case ResourceTypeLink:
		return &LinkPayload{}, nil
	case ResourceTypePresenter:
		return &PresenterPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResourceType, t)
	}
}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload restores a stored payload of the given type.
func DecodePayload(t ResourceType, data []byte) (Payload, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return p, nil
}

// ClonePayload returns an independent copy of p.
func ClonePayload(p Payload) Payload {
	data, err := EncodePayload(p)
	if err != nil {
		return p
	}
	clone, err := DecodePayload(p.Type(), data)
	if err != nil {
		return p
	}
	return clone
}
