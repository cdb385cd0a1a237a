package llm

import (
	"context"
	"strings"
)

// Media is a single file handed to a provider.
type Media struct {
	Filename string
	MIMEType string
	Data     []byte
	Video    bool
}

// Description is the metadata a provider extracted from one media file.
type Description struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Keywords    []string `json:"keywords"`
	TextInImage string   `json:"text"`
	Raw         string   `json:"-"`
}

// Empty reports whether the provider returned nothing usable.
func (d Description) Empty() bool {
	return strings.TrimSpace(d.Description) == "" &&
		strings.TrimSpace(d.Category) == "" &&
		len(d.Keywords) == 0 &&
		strings.TrimSpace(d.TextInImage) == ""
}

// Service describes media and releases provider resources on Close.
type Service interface {
	Describe(ctx context.Context, media Media) (Description, error)
	Close() error
}

// FrameSource extracts a still frame from a video.
type FrameSource interface {
	FirstFrame(ctx context.Context, data []byte) ([]byte, error)
}
