package simpleattachment

import "strings"

// Category is a coarse media classification derived from a file extension.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
	CategoryFile     Category = "file"
)

var categoryByExtension = map[string]Category{
	"jpg":  CategoryImage,
	"jpeg": CategoryImage,
	"png":  CategoryImage,
	"gif":  CategoryImage,
	"mp4":  CategoryVideo,
	"avi":  CategoryVideo,
	"mov":  CategoryVideo,
	"mp3":  CategoryAudio,
	"wav":  CategoryAudio,
	"pdf":  CategoryDocument,
	"docx": CategoryDocument,
	"txt":  CategoryDocument,
}

// Classify maps an extension, with or without its leading dot and in any
// case, to a Category. Unmapped input, including "", yields CategoryFile.
func Classify(ext string) Category {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if c, ok := categoryByExtension[ext]; ok {
		return c
	}
	return CategoryFile
}
