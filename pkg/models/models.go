package models

import (
	"fmt"
	"time"
)

// HallCategory identifies which hall family a base layout belongs to.
// The two families partition level numbering and listing URL shapes on
// the source site (th_<level> vs bh_<level> path segments).
type HallCategory string

const (
	CategoryMainHall    HallCategory = "main_hall"
	CategoryBuilderHall HallCategory = "builder_hall"
)

// Slug returns the URL path component the source site uses for the category
func (c HallCategory) Slug() string {
	switch c {
	case CategoryMainHall:
		return "th"
	case CategoryBuilderHall:
		return "bh"
	}
	return ""
}

// CategoryFromSlug maps a source-site path slug back to a HallCategory
func CategoryFromSlug(slug string) (HallCategory, bool) {
	switch slug {
	case "th":
		return CategoryMainHall, true
	case "bh":
		return CategoryBuilderHall, true
	}
	return "", false
}

// IsValid returns true if the category is a known value
func (c HallCategory) IsValid() bool {
	return c == CategoryMainHall || c == CategoryBuilderHall
}

// LayoutType tags the tactical purpose of a base layout
type LayoutType string

const (
	LayoutWar     LayoutType = "war"
	LayoutFarm    LayoutType = "farm"
	LayoutTrophy  LayoutType = "trophy"
	LayoutHybrid  LayoutType = "hybrid"
	LayoutCWL     LayoutType = "cwl"
	LayoutDefense LayoutType = "defense"
	LayoutUnknown LayoutType = "unknown"
)

// NormalizeLayoutType canonicalizes a raw layout type token from a detail
// URL. The source site spells "defence" and tags builder-hall trophy bases
// as "push"; both are folded into their canonical forms here so the
// persisted store never contains synonyms.
func NormalizeLayoutType(raw string) LayoutType {
	switch raw {
	case "war":
		return LayoutWar
	case "farm", "farming":
		return LayoutFarm
	case "trophy", "push":
		return LayoutTrophy
	case "hybrid":
		return LayoutHybrid
	case "cwl":
		return LayoutCWL
	case "defense", "defence":
		return LayoutDefense
	}
	return LayoutUnknown
}

// ScrapedRecord is one discovered base layout extracted from a detail page.
// DeepLink is the natural identity key across the persisted store; a record
// with an empty DeepLink is never persisted since it has no actionable
// payload (there is nothing for the game client to import).
type ScrapedRecord struct {
	SourceURL      string       `json:"sourceUrl"`
	Title          string       `json:"title"`
	Category       HallCategory `json:"category"`
	Level          int          `json:"level"`
	LayoutType     LayoutType   `json:"layoutType"`
	SequenceNumber int          `json:"sequenceNumber"`
	DeepLink       string       `json:"deepLink,omitempty"`
	ThumbnailURL   string       `json:"thumbnailUrl,omitempty"`
	FullImageURL   string       `json:"fullImageUrl,omitempty"`
	ScrapedAt      time.Time    `json:"scrapedAt"`
}

// HasDeepLink reports whether the record carries an actionable payload
func (r *ScrapedRecord) HasDeepLink() bool {
	return r.DeepLink != ""
}

// FallbackTitle synthesizes a display title from the structural fields,
// used when a detail page has no usable <title> element
func (r *ScrapedRecord) FallbackTitle() string {
	family := "TH"
	if r.Category == CategoryBuilderHall {
		family = "BH"
	}
	return fmt.Sprintf("%s%d %s base #%d", family, r.Level, r.LayoutType, r.SequenceNumber)
}

// BaseFile is the persisted store document consumed by the read side.
// Consumers filter and group Bases client-side by category/level/type.
type BaseFile struct {
	UpdatedAt  time.Time       `json:"updatedAt"`
	TotalBases int             `json:"totalBases"`
	Bases      []ScrapedRecord `json:"bases"`
}

// URLError records a single detail URL whose extraction failed. One entry
// per failed target; a failed target never aborts the enclosing job.
type URLError struct {
	URL     string `json:"url"`
	Message string `json:"error"`
}
