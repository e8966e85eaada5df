package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ImageFormatJPEG is the only image encoding attachments are sent with.
const ImageFormatJPEG = "jpeg"

// ImageAttachment is a per-request image. It is never persisted with a conversation.
type ImageAttachment struct {
	Format string
	Bytes  []byte
}

// Part is one element of multi-part content: either text or an image.
type Part struct {
	Text  string
	Image *ImageAttachment
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func ImagePart(img ImageAttachment) Part {
	return Part{Image: &img}
}

// IsImage reports whether p carries an image instead of text.
func (p Part) IsImage() bool {
	return p.Image != nil
}

type imageSourceJSON struct {
	Bytes []byte `json:"bytes"`
}

type imageJSON struct {
	Format string          `json:"format"`
	Source imageSourceJSON `json:"source"`
}

type partJSON struct {
	Text  *string    `json:"text,omitempty"`
	Image *imageJSON `json:"image,omitempty"`
}

func (p Part) MarshalJSON() ([]byte, error) {
	if p.Image != nil {
		return json.Marshal(partJSON{Image: &imageJSON{
			Format: p.Image.Format,
			Source: imageSourceJSON{Bytes: p.Image.Bytes},
		}})
	}
	text := p.Text
	return json.Marshal(partJSON{Text: &text})
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var raw partJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Image != nil:
		*p = ImagePart(ImageAttachment{Format: raw.Image.Format, Bytes: raw.Image.Source.Bytes})
	case raw.Text != nil:
		*p = TextPart(*raw.Text)
	default:
		return fmt.Errorf("content part has neither text nor image")
	}
	return nil
}

// ContentKind tells which variant a Content holds.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentParts
)

// Content is either plain text or a sequence of parts. Stored history may hold
// either shape; the wire shape sent to the model is always parts.
type Content struct {
	kind  ContentKind
	text  string
	parts []Part
}

func Text(s string) Content {
	return Content{kind: ContentText, text: s}
}

func Parts(parts ...Part) Content {
	cp := make([]Part, len(parts))
	copy(cp, parts)
	return Content{kind: ContentParts, parts: cp}
}

func (c Content) Kind() ContentKind {
	return c.kind
}

func (c Content) IsText() bool {
	return c.kind == ContentText
}

// PlainText returns the text of c. Text parts are joined with newlines and
// image parts are skipped.
func (c Content) PlainText() string {
	if c.kind == ContentText {
		return c.text
	}
	texts := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		if !p.IsImage() {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// AsParts returns the parts of c, wrapping plain text into a single text part.
// The returned slice is a copy.
func (c Content) AsParts() []Part {
	if c.kind == ContentText {
		return []Part{TextPart(c.text)}
	}
	cp := make([]Part, len(c.parts))
	copy(cp, c.parts)
	return cp
}

// WithTextPrefix returns c with prefix prepended to its text. For parts the
// prefix goes into the first text part, or a new leading text part when none exists.
func (c Content) WithTextPrefix(prefix string) Content {
	if c.kind == ContentText {
		return Text(prefix + c.text)
	}
	parts := c.AsParts()
	for i := range parts {
		if !parts[i].IsImage() {
			parts[i].Text = prefix + parts[i].Text
			return Parts(parts...)
		}
	}
	return Parts(append([]Part{TextPart(prefix)}, parts...)...)
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.kind == ContentText {
		return json.Marshal(c.text)
	}
	parts := c.parts
	if parts == nil {
		parts = []Part{}
	}
	return json.Marshal(parts)
}

// UnmarshalJSON accepts both the legacy plain string and the parts array.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Text("")
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of parts: %w", err)
	}
	*c = Parts(parts...)
	return nil
}

type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: Text(text)}
}

// Conversation is an ordered chat history identified by an opaque id.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}
