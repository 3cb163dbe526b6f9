package content

import (
	"errors"
	"fmt"
	"strings"
)

// MediaKind classifies one entry of an item's media set.
type MediaKind string

const (
	KindPhoto     MediaKind = "photo"
	KindLiveVideo MediaKind = "live_video"
	KindVideo     MediaKind = "video"
)

// Valid reports whether k is one of the known media kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case KindPhoto, KindLiveVideo, KindVideo:
		return true
	}
	return false
}

// MediaRef points at one remote media object. Sequence is the item's own
// ordering and survives filtering.
type MediaRef struct {
	URL      string    `json:"url"`
	Kind     MediaKind `json:"kind"`
	Sequence int       `json:"sequence"`
}

// Manifest is the full ordered media set of an item, independent of what a
// delivery chose to transfer.
type Manifest []MediaRef

// Filter returns the entries a delivery should transfer. Live videos are kept
// only when includeLive is set.
func (m Manifest) Filter(includeLive bool) Manifest {
	out := make(Manifest, 0, len(m))
	for _, ref := range m {
		if ref.Kind == KindLiveVideo && !includeLive {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// Omitted returns the entries Filter(includeLive) drops.
func (m Manifest) Omitted(includeLive bool) Manifest {
	if includeLive {
		return nil
	}
	var out Manifest
	for _, ref := range m {
		if ref.Kind == KindLiveVideo {
			out = append(out, ref)
		}
	}
	return out
}

// Count returns how many entries have the given kind.
func (m Manifest) Count(kind MediaKind) int {
	n := 0
	for _, ref := range m {
		if ref.Kind == kind {
			n++
		}
	}
	return n
}

// Comment is one threaded reply under an item. ParentID is empty for
// top-level comments.
type Comment struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id,omitempty"`
	Author   string   `json:"author,omitempty"`
	Text     string   `json:"text"`
	Images   []string `json:"images,omitempty"`
	AudioURL string   `json:"audio_url,omitempty"`
}

// Item is a content unit supplied by the content source.
type Item struct {
	ID            string    `json:"id"`
	Title         string    `json:"title,omitempty"`
	Text          string    `json:"text,omitempty"`
	SourceURL     string    `json:"source_url,omitempty"`
	AlternateURL  string    `json:"alternate_url,omitempty"`
	Manifest      Manifest  `json:"media,omitempty"`
	Comments      []Comment `json:"comments,omitempty"`
	AuxiliaryText string    `json:"auxiliary_text,omitempty"`
}

// Link returns the link shown with the item, honouring the alternate-link
// choice when an alternate exists.
func (it *Item) Link(useAlternate bool) string {
	if it == nil {
		return ""
	}
	if useAlternate && strings.TrimSpace(it.AlternateURL) != "" {
		return it.AlternateURL
	}
	return it.SourceURL
}

// Caption renders the item text that accompanies its media.
func (it *Item) Caption(useAlternate bool) string {
	if it == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if title := strings.TrimSpace(it.Title); title != "" {
		parts = append(parts, title)
	}
	if text := strings.TrimSpace(it.Text); text != "" {
		parts = append(parts, text)
	}
	if link := strings.TrimSpace(it.Link(useAlternate)); link != "" {
		parts = append(parts, link)
	}
	return strings.Join(parts, "\n\n")
}

// SummaryText is the text handed to the summarizer. The content source may
// supply a dedicated auxiliary text; otherwise title and body are used.
func (it *Item) SummaryText() string {
	if it == nil {
		return ""
	}
	if aux := strings.TrimSpace(it.AuxiliaryText); aux != "" {
		return aux
	}
	return strings.TrimSpace(strings.Join([]string{it.Title, it.Text}, "\n"))
}

// Validate checks the structural invariants the pipeline relies on.
func (it *Item) Validate() error {
	if it == nil {
		return errors.New("item is nil")
	}
	for i, ref := range it.Manifest {
		if strings.TrimSpace(ref.URL) == "" {
			return fmt.Errorf("media[%d]: url is required", i)
		}
		if !ref.Kind.Valid() {
			return fmt.Errorf("media[%d]: unknown kind %q", i, ref.Kind)
		}
	}
	seen := make(map[string]struct{}, len(it.Comments))
	for i, c := range it.Comments {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("comments[%d]: id is required", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("comments[%d]: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// Normalize fills missing sequence numbers with manifest order.
func (it *Item) Normalize() {
	if it == nil {
		return
	}
	for i := range it.Manifest {
		if it.Manifest[i].Sequence == 0 {
			it.Manifest[i].Sequence = i + 1
		}
	}
}
