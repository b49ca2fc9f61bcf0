package tool

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// ResponseKind is the closed set of tool response interpretations.
type ResponseKind int

const (
	// PlainText treats the body as opaque text.
	PlainText ResponseKind = iota
	// DirectFile treats the whole body as a binary payload to promote into
	// an attachment.
	DirectFile
	// StructuredJSON parses the body as a JSON object passed through to the
	// model verbatim.
	StructuredJSON
	// StructuredJSONWithMedia is StructuredJSON whose top-level fields carry
	// embedded media to materialize into attachments.
	StructuredJSONWithMedia
)

func (k ResponseKind) String() string {
	switch k {
	case DirectFile:
		return "direct_file"
	case StructuredJSON:
		return "structured_json"
	case StructuredJSONWithMedia:
		return "structured_json_with_media"
	default:
		return "plain_text"
	}
}

// directFileTypes are content types whose whole body is a file payload.
var directFileTypes = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
}

func isDirectFileType(mediaType string) bool {
	if directFileTypes[mediaType] {
		return true
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"),
		strings.HasPrefix(mediaType, "audio/"),
		strings.HasPrefix(mediaType, "video/"):
		return true
	}
	return false
}

// ClassifyResponse selects the interpretation strategy for a tool response
// from its Content-Type header and body. Pure; does no I/O.
func ClassifyResponse(contentType string, body []byte) ResponseKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	if isDirectFileType(mediaType) {
		return DirectFile
	}
	if mediaType != "application/json" {
		return PlainText
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		// Declared JSON that does not parse as an object degrades to text.
		return PlainText
	}
	media, _ := ExtractMedia(payload)
	if len(media) > 0 {
		return StructuredJSONWithMedia
	}
	return StructuredJSON
}

// MediaRef is one piece of embedded media found in a structured JSON
// response: either decoded inline bytes or a URL to fetch.
type MediaRef struct {
	Field    string
	MimeType string
	Data     []byte
	FileURL  string
}

var dataURIRe = regexp.MustCompile(`^data:((?:image|audio|video)/[\w.+-]+);base64,(.+)$`)

// ExtractMedia scans the top-level fields of a structured payload for
// embedded media: base64 data URIs with an image/audio/video mime type, and
// {file_url, mime_type} object pairs. It returns the media found and the
// remaining fields, which are passed to the model verbatim.
func ExtractMedia(payload map[string]any) ([]MediaRef, map[string]any) {
	var media []MediaRef
	rest := make(map[string]any, len(payload))

	for field, value := range payload {
		switch v := value.(type) {
		case string:
			if m := dataURIRe.FindStringSubmatch(v); m != nil {
				if data, err := base64.StdEncoding.DecodeString(m[2]); err == nil {
					media = append(media, MediaRef{Field: field, MimeType: m[1], Data: data})
					continue
				}
			}
		case map[string]any:
			fileURL, okURL := v["file_url"].(string)
			mimeType, okMime := v["mime_type"].(string)
			if okURL && okMime && fileURL != "" && mimeType != "" {
				media = append(media, MediaRef{Field: field, MimeType: mimeType, FileURL: fileURL})
				continue
			}
		}
		rest[field] = value
	}

	// Field order is map order; keep output deterministic for callers that
	// upload sequentially.
	sortMediaRefs(media)
	return media, rest
}

func sortMediaRefs(refs []MediaRef) {
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && refs[j].Field < refs[j-1].Field; j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
}

// FilenameFromResponse derives a display name for a direct-file response:
// Content-Disposition first, then the final URL path segment, then a generic
// fallback.
func FilenameFromResponse(contentDisposition, requestURL string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if name := strings.TrimSpace(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(requestURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return "tool-file"
}
