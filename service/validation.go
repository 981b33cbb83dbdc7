package service

import (
	"bytes"
	"encoding/json"
	"html"
	"mime"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/microcosm-cc/bluemonday"
)

const (
	maxNameLength        = 120
	maxDescriptionLength = 2000
	maxDocumentBytes     = 10 * 1024 * 1024
	maxSessionBytes      = 1024 * 1024
	maxFileNameLength    = 100
	maxFileExtLength     = 16
	maxExternalIdLength  = 255

	DefaultPerPage = 20
	MaxPerPage     = 100
)

var allowedAssetTypes = map[string]struct{}{
	"image/png":     {},
	"image/jpeg":    {},
	"image/gif":     {},
	"image/webp":    {},
	"image/svg+xml": {},
	"video/mp4":     {},
	"video/webm":    {},
}

// Strict policy strips every tag; user text is stored as plain text.
var textPolicy = bluemonday.StrictPolicy()

var unsafeFileNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func validateName(name string) (string, error) {
	clean := sanitizeText(name)
	if clean == "" {
		return "", newValidationError("name", "is required")
	}
	if utf8.RuneCountInString(clean) > maxNameLength {
		return "", newValidationError("name", "must be at most %d characters", maxNameLength)
	}
	return clean, nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func validateDescription(description string) (string, error) {
	clean := sanitizeText(description)
	if utf8.RuneCountInString(clean) > maxDescriptionLength {
		return "", newValidationError("description", "must be at most %d characters", maxDescriptionLength)
	}
	return clean, nil
}

// normalizeJSONObject accepts a JSON object, treating empty input and null
// as {}.
func normalizeJSONObject(field string, raw json.RawMessage, maxBytes int) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	if len(trimmed) > maxBytes {
		return nil, newValidationError(field, "must be at most %d bytes", maxBytes)
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, newValidationError(field, "must be a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

func validateId(field string, id string) error {
	if _, err := uuid.FromString(id); err != nil {
		return newValidationError(field, "must be a valid id")
	}
	return nil
}

func normalizeFileType(fileType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(fileType))
	if err != nil {
		return "", newValidationError("fileType", "is not a valid MIME type")
	}
	mediaType = strings.ToLower(mediaType)
	if _, ok := allowedAssetTypes[mediaType]; !ok {
		return "", newValidationError("fileType", "%s is not allowed", mediaType)
	}
	return mediaType, nil
}

func validateFileSize(fileSize int64, maxBytes int64) error {
	if fileSize <= 0 {
		return newValidationError("fileSize", "must be positive")
	}
	if fileSize > maxBytes {
		return newValidationError("fileSize", "must be at most %d bytes", maxBytes)
	}
	return nil
}

func validateExternalAssetId(externalAssetId string) (string, error) {
	clean := strings.TrimSpace(externalAssetId)
	if clean == "" {
		return "", newValidationError("externalAssetId", "is required")
	}
	if len(clean) > maxExternalIdLength {
		return "", newValidationError("externalAssetId", "must be at most %d characters", maxExternalIdLength)
	}
	return clean, nil
}

// sanitizeFileName keeps the base name with a conservative character set so
// it is safe inside a storage key and a URL path.
func sanitizeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}

	ext := strings.ToLower(path.Ext(base))
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.Trim(unsafeFileNameChars.ReplaceAllString(stem, "-"), "-.")
	ext = unsafeFileNameChars.ReplaceAllString(ext, "")
	if len(ext) > maxFileExtLength {
		ext = ext[:maxFileExtLength]
	}
	if stem == "" {
		stem = "file"
	}
	if len(stem)+len(ext) > maxFileNameLength {
		stem = stem[:maxFileNameLength-len(ext)]
	}
	return stem + ext
}

func canvasKeyPrefix(canvasId string) string {
	return "canvases/" + canvasId + "/"
}

func validateStorageKey(canvasId string, storageKey string) error {
	prefix := canvasKeyPrefix(canvasId)
	rest, ok := strings.CutPrefix(storageKey, prefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return newValidationError("storageKey", "must be a key issued for this canvas")
	}
	return nil
}

func normalizePagination(page int, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}
