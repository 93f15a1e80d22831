package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/publishing"
)

const (
	multipartMemoryLimit = 32 << 20
	maxUploadBytes       = 512 << 20
)

var errInvalidForm = errors.New("invalid form submission")

// submittedForm holds the parsed values and files of an admin submission.
// A key is present when the client sent it, even with an empty value.
type submittedForm struct {
	values url.Values
	files  map[string][]*multipart.FileHeader
}

func parseSubmittedForm(r *http.Request) (submittedForm, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			return submittedForm{}, fmt.Errorf("%w: %v", errInvalidForm, err)
		}
		return submittedForm{values: r.PostForm, files: r.MultipartForm.File}, nil
	}
	if err := r.ParseForm(); err != nil {
		return submittedForm{}, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	return submittedForm{values: r.PostForm}, nil
}

func (f submittedForm) field(key string) *string {
	values, ok := f.values[key]
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}

// list reads repeated values, a JSON array, or a single value split on
// separator. An empty single value yields an empty list.
func (f submittedForm) list(key string, separator string) (*[]string, error) {
	values, ok := f.values[key]
	if !ok {
		return nil, nil
	}
	if len(values) > 1 {
		items := append([]string(nil), values...)
		return &items, nil
	}
	raw := ""
	if len(values) == 1 {
		raw = strings.TrimSpace(values[0])
	}
	items := []string{}
	switch {
	case raw == "":
	case strings.HasPrefix(raw, "["):
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("%w: %s must be a JSON array of strings", errInvalidForm, key)
		}
	default:
		for _, item := range strings.Split(raw, separator) {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return &items, nil
}

// file reads the first upload stored under key. Empty uploads count as absent.
func (f submittedForm) file(key string) (*publishing.FilePart, error) {
	headers := f.files[key]
	if len(headers) == 0 || headers[0].Size == 0 {
		return nil, nil
	}
	header := headers[0]
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", errInvalidForm, key, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errInvalidForm, key, err)
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds upload limit", errInvalidForm, key)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &publishing.FilePart{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func contentFormFromRequest(r *http.Request) (publishing.ContentForm, error) {
	submitted, err := parseSubmittedForm(r)
	if err != nil {
		return publishing.ContentForm{}, err
	}
	tags, err := submitted.list("tags", ",")
	if err != nil {
		return publishing.ContentForm{}, err
	}
	mediaPart, err := submitted.file("media")
	if err != nil {
		return publishing.ContentForm{}, err
	}
	thumbnailPart, err := submitted.file("thumbnail")
	if err != nil {
		return publishing.ContentForm{}, err
	}
	return publishing.ContentForm{
		Title:         submitted.field("title"),
		Description:   submitted.field("description"),
		Type:          submitted.field("type"),
		Category:      submitted.field("category"),
		Duration:      submitted.field("duration"),
		Transcription: submitted.field("transcription"),
		TextContent:   submitted.field("textContent"),
		PublishedAt:   submitted.field("publishedAt"),
		Tags:          tags,
		Media:         mediaPart,
		Thumbnail:     thumbnailPart,
	}, nil
}

func profileFormFromRequest(r *http.Request) (publishing.ProfileForm, error) {
	submitted, err := parseSubmittedForm(r)
	if err != nil {
		return publishing.ProfileForm{}, err
	}
	formations, err := submitted.list("formations", "\n")
	if err != nil {
		return publishing.ProfileForm{}, err
	}
	motivations, err := submitted.list("motivations", "\n")
	if err != nil {
		return publishing.ProfileForm{}, err
	}
	image, err := submitted.file("image")
	if err != nil {
		return publishing.ProfileForm{}, err
	}
	return publishing.ProfileForm{
		FirstName:   submitted.field("firstName"),
		LastName:    submitted.field("lastName"),
		Title:       submitted.field("title"),
		Bio:         submitted.field("bio"),
		Formations:  formations,
		Motivations: motivations,
		Twitter:     submitted.field("twitter"),
		LinkedIn:    submitted.field("linkedin"),
		Email:       submitted.field("email"),
		Image:       image,
	}, nil
}

func categoryFormFromRequest(r *http.Request) (publishing.CategoryForm, error) {
	submitted, err := parseSubmittedForm(r)
	if err != nil {
		return publishing.CategoryForm{}, err
	}
	return publishing.CategoryForm{
		ID:          submitted.field("id"),
		Label:       submitted.field("label"),
		Description: submitted.field("description"),
		Icon:        submitted.field("icon"),
	}, nil
}
