package publishing

import "strings"

// FilePart is an uploaded file taken from a multipart form.
type FilePart struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (f *FilePart) present() bool {
	return f != nil && len(f.Data) > 0
}

// ContentForm is the admin submission for a content item. A nil field was
// absent from the form; a non-nil empty string was submitted empty.
type ContentForm struct {
	Title         *string
	Description   *string
	Type          *string
	Category      *string
	Duration      *string
	Transcription *string
	TextContent   *string
	PublishedAt   *string
	Tags          *[]string
	Media         *FilePart
	Thumbnail     *FilePart
}

// ProfileForm is the admin submission for the profile.
type ProfileForm struct {
	FirstName   *string
	LastName    *string
	Title       *string
	Bio         *string
	Formations  *[]string
	Motivations *[]string
	Twitter     *string
	LinkedIn    *string
	Email       *string
	Image       *FilePart
}

// CategoryForm is the admin submission for a category.
type CategoryForm struct {
	ID          *string
	Label       *string
	Description *string
	Icon        *string
}

func valueOf(field *string) string {
	if field == nil {
		return ""
	}
	return *field
}

func blank(field *string) bool {
	return field == nil || strings.TrimSpace(*field) == ""
}

func presentButBlank(field *string) bool {
	return field != nil && strings.TrimSpace(*field) == ""
}

func isRemoteReference(reference string) bool {
	return strings.HasPrefix(reference, "http")
}
