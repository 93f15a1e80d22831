package catalog

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// ContentType enumerates the supported kinds of published content.
type ContentType string

const (
	// ContentTypeVideo carries a media blob and a duration.
	ContentTypeVideo ContentType = "video"
	// ContentTypeAudio carries a media blob and a duration.
	ContentTypeAudio ContentType = "audio"
	// ContentTypeText carries inline long-form text.
	ContentTypeText ContentType = "text"
)

const maxIdentifierLength = 190

var (
	// ErrNotFound indicates that no row matches the requested identifier.
	ErrNotFound = errors.New("catalog: not found")
	// ErrConstraintViolation indicates a category is still referenced by contents.
	ErrConstraintViolation = errors.New("catalog: category still referenced by contents")
	// ErrConflict indicates that a row with the same identifier already exists.
	ErrConflict = errors.New("catalog: identifier already exists")
	// ErrInvalidInput indicates that an identifier or field failed validation.
	ErrInvalidInput = errors.New("catalog: invalid input")
)

// ParseContentType validates raw input and returns a ContentType.
func ParseContentType(rawInput string) (ContentType, error) {
	switch ContentType(strings.ToLower(strings.TrimSpace(rawInput))) {
	case ContentTypeVideo:
		return ContentTypeVideo, nil
	case ContentTypeAudio:
		return ContentTypeAudio, nil
	case ContentTypeText:
		return ContentTypeText, nil
	default:
		return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, rawInput)
	}
}

// NormalizeIdentifier trims and bounds an identifier before it reaches the database.
func NormalizeIdentifier(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidInput)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: identifier exceeds %d characters", ErrInvalidInput, maxIdentifierLength)
	}
	return trimmed, nil
}

// SocialLinks holds the optional public profile links.
type SocialLinks struct {
	Twitter  string `json:"twitter,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Profile is the singleton author record.
type Profile struct {
	ID              string                          `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	FirstName       string                          `gorm:"column:first_name;not null" json:"firstName"`
	LastName        string                          `gorm:"column:last_name;not null" json:"lastName"`
	Title           string                          `gorm:"column:title;not null" json:"title"`
	Bio             string                          `gorm:"column:bio;type:text;not null" json:"bio"`
	ImageURL        string                          `gorm:"column:image_url" json:"imageUrl"`
	Formations      datatypes.JSONSlice[string]     `gorm:"column:formations" json:"formations"`
	Motivations     datatypes.JSONSlice[string]     `gorm:"column:motivations" json:"motivations"`
	SocialLinks     datatypes.JSONType[SocialLinks] `gorm:"column:social_links" json:"socialLinks"`
	CreatedAtMillis int64                           `gorm:"column:created_at_ms;not null" json:"-"`
	UpdatedAtMillis int64                           `gorm:"column:updated_at_ms;not null" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "profiles"
}

// Category groups contents under a slug identifier.
type Category struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Label           string `gorm:"column:label;not null;index" json:"label"`
	Description     string `gorm:"column:description;type:text" json:"description"`
	Icon            string `gorm:"column:icon;size:32" json:"icon"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "categories"
}

// Content is a published item. Video and audio items reference a media blob,
// text items carry TextContent inline.
type Content struct {
	ID              string                      `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Title           string                      `gorm:"column:title;not null" json:"title"`
	Description     string                      `gorm:"column:description;type:text" json:"description"`
	Type            ContentType                 `gorm:"column:type;size:16;not null;index" json:"type"`
	Category        string                      `gorm:"column:category;size:190;index" json:"category"`
	MediaURL        string                      `gorm:"column:media_url" json:"mediaUrl,omitempty"`
	ThumbnailURL    string                      `gorm:"column:thumbnail_url" json:"thumbnailUrl,omitempty"`
	Transcription   string                      `gorm:"column:transcription;type:text" json:"transcription,omitempty"`
	TextContent     string                      `gorm:"column:text_content;type:text" json:"textContent,omitempty"`
	Duration        string                      `gorm:"column:duration;size:32" json:"duration,omitempty"`
	PublishedAt     string                      `gorm:"column:published_at;size:32;index" json:"publishedAt"`
	Tags            datatypes.JSONSlice[string] `gorm:"column:tags" json:"tags"`
	CreatedAtMillis int64                       `gorm:"column:created_at_ms;not null;index" json:"createdAt"`
	UpdatedAtMillis int64                       `gorm:"column:updated_at_ms;not null" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Content) TableName() string {
	return "contents"
}

// TagList returns the tags as a plain slice, never nil.
func (c Content) TagList() []string {
	if len(c.Tags) == 0 {
		return []string{}
	}
	return append([]string(nil), c.Tags...)
}

// ContentView is the per-content view counter.
type ContentView struct {
	ContentID       string `gorm:"column:content_id;primaryKey;size:190;not null"`
	Views           int64  `gorm:"column:views;not null;default:0;index"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ContentView) TableName() string {
	return "content_views"
}

// VisitorSession is one append-only visit record.
type VisitorSession struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	VisitorID       string         `gorm:"column:visitor_id;size:190;not null;index"`
	Metadata        datatypes.JSON `gorm:"column:metadata"`
	CreatedAtMillis int64          `gorm:"column:created_at_ms;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (VisitorSession) TableName() string {
	return "visitor_sessions"
}

// Models lists every table owned by the catalog, in migration order.
func Models() []any {
	return []any{&Profile{}, &Category{}, &Content{}, &ContentView{}, &VisitorSession{}}
}

// ContentWithViews pairs a content row with its view counter.
type ContentWithViews struct {
	Content
	Views int64 `json:"views"`
}

// ProfilePatch carries a partial profile update; nil fields are left untouched.
type ProfilePatch struct {
	FirstName   *string
	LastName    *string
	Title       *string
	Bio         *string
	ImageURL    *string
	Formations  *[]string
	Motivations *[]string
	SocialLinks *SocialLinks
}

// CategoryPatch carries a partial category update; the identifier is immutable.
type CategoryPatch struct {
	Label       *string
	Description *string
	Icon        *string
}

// NewContent describes a content row to insert.
type NewContent struct {
	Title         string
	Description   string
	Type          ContentType
	Category      string
	MediaURL      string
	ThumbnailURL  string
	Transcription string
	TextContent   string
	Duration      string
	PublishedAt   string
	Tags          []string
}

// ContentPatch carries a partial content update; nil fields are left untouched.
// A non-nil Tags replaces the whole list.
type ContentPatch struct {
	Title         *string
	Description   *string
	Type          *ContentType
	Category      *string
	MediaURL      *string
	ThumbnailURL  *string
	Transcription *string
	TextContent   *string
	Duration      *string
	PublishedAt   *string
	Tags          *[]string
}

// Stats aggregates catalog counts for the dashboard.
type Stats struct {
	TotalContents      int64            `json:"totalContents"`
	TotalCategories    int64            `json:"totalCategories"`
	ContentsByType     map[string]int64 `json:"contentsByType"`
	ContentsByCategory map[string]int64 `json:"contentsByCategory"`
}

// DailyVisitors counts distinct visitors on one UTC day.
type DailyVisitors struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// VisitorStats summarises visitors over a trailing window.
type VisitorStats struct {
	Total int64           `json:"total"`
	Daily []DailyVisitors `json:"daily"`
}
