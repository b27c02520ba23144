package backend

import (
	"path"
	"strings"
)

// NodeOutput holds the artifacts one node produced, split by media class.
// URLs are backend-local references; texts are carried verbatim.
type NodeOutput struct {
	Images []string
	Videos []string
	Audios []string
	Texts  []string
}

// Empty reports whether the node produced nothing of interest.
func (o NodeOutput) Empty() bool {
	return len(o.Images) == 0 && len(o.Videos) == 0 && len(o.Audios) == 0 && len(o.Texts) == 0
}

// Artifacts maps producing node IDs to their outputs.
type Artifacts map[string]NodeOutput

// MediaClass is the coarse media classification used to split artifacts.
type MediaClass int

const (
	MediaUnknown MediaClass = iota
	MediaImage
	MediaVideo
	MediaAudio
)

var (
	imageExts = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".bmp": true, ".tiff": true,
	}
	videoExts = map[string]bool{
		".mp4": true, ".mov": true, ".avi": true, ".webm": true, ".gif": true,
	}
	audioExts = map[string]bool{
		".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".aac": true,
		".m4a": true, ".wma": true, ".opus": true,
	}
)

// ClassifyMedia classifies a filename or URL by its extension. Query
// strings are stripped before the extension is read.
func ClassifyMedia(ref string) MediaClass {
	name := ref
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := strings.ToLower(path.Ext(name))
	switch {
	case imageExts[ext]:
		return MediaImage
	case videoExts[ext]:
		return MediaVideo
	case audioExts[ext]:
		return MediaAudio
	default:
		return MediaUnknown
	}
}

// AddMedia appends a media reference to the matching class. Unknown
// extensions are dropped.
func (o *NodeOutput) AddMedia(ref string) {
	o.AddMediaNamed(ref, ref)
}

// AddMediaNamed classifies by name but stores ref, for references (view
// URLs) whose path does not end in the artifact's filename.
func (o *NodeOutput) AddMediaNamed(name, ref string) {
	switch ClassifyMedia(name) {
	case MediaImage:
		o.Images = append(o.Images, ref)
	case MediaVideo:
		o.Videos = append(o.Videos, ref)
	case MediaAudio:
		o.Audios = append(o.Audios, ref)
	}
}
