package domain

// Turn is one role-tagged unit of the conversation. A committed turn always
// has at least one part.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a single component of a turn. Exactly one of Text or Image is
// meaningful, selected by Type.
type Part struct {
	Type  string `json:"type"` // "text" or "image"
	Text  string `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
}

// Image holds raw image bytes as attached by the user.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// TextPart returns a text part.
func TextPart(s string) Part {
	return Part{Type: PartTypeText, Text: s}
}

// ImagePart returns an image part.
func ImagePart(mimeType string, data []byte) Part {
	return Part{Type: PartTypeImage, Image: &Image{MIMEType: mimeType, Data: data}}
}

// UserTurn builds a user turn from text and an optional image. Empty text is
// omitted so an image-only submission carries just the image part.
func UserTurn(text string, img *Image) Turn {
	var parts []Part
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	if img != nil {
		parts = append(parts, ImagePart(img.MIMEType, img.Data))
	}
	return Turn{Role: RoleUser, Parts: parts}
}

// AssistantTurn builds an assistant turn holding exactly one text part, which
// may be empty.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Parts: []Part{TextPart(text)}}
}

// Text concatenates the text parts of the turn.
func (t Turn) Text() string {
	var s string
	for _, p := range t.Parts {
		if p.Type == PartTypeText {
			s += p.Text
		}
	}
	return s
}

// Clone returns a deep copy of the turn, including image bytes.
func (t Turn) Clone() Turn {
	out := Turn{Role: t.Role, Parts: make([]Part, len(t.Parts))}
	for i, p := range t.Parts {
		out.Parts[i] = p
		if p.Image != nil {
			img := *p.Image
			img.Data = append([]byte(nil), p.Image.Data...)
			out.Parts[i].Image = &img
		}
	}
	return out
}
