package runninghub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrStageFailed is returned when a remote input could not be staged onto
// the provider.
var ErrStageFailed = errors.New("runninghub: stage failed")

// Stage downloads the resource at uri and uploads it to the provider's
// file store, returning the provider-side file name for use as a node
// input.
func (a *Adapter) Stage(ctx context.Context, uri string) (string, error) {
	src, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}
	resp, err := http.DefaultClient.Do(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: fetch %s: status %d", ErrStageFailed, uri, resp.StatusCode)
	}

	name := sourceName(uri)
	var env envelope
	upload, err := a.client.R().
		SetContext(ctx).
		SetFileReader("file", name, resp.Body).
		SetFormData(map[string]string{
			"apiKey":   a.apiKey,
			"fileType": fileTypeFor(name),
		}).
		SetResult(&env).
		Post("/task/openapi/upload")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}
	if upload.IsError() {
		return "", fmt.Errorf("%w: upload status %d", ErrStageFailed, upload.StatusCode())
	}
	if env.Code != 0 {
		return "", fmt.Errorf("%w: %v", ErrStageFailed, &APIError{Endpoint: "/task/openapi/upload", Code: env.Code, Msg: env.Msg})
	}

	var data struct {
		FileName string `json:"fileName"`
	}
	if err := decodeData(env, &data); err != nil || data.FileName == "" {
		return "", fmt.Errorf("%w: malformed upload response", ErrStageFailed)
	}
	return data.FileName, nil
}

func sourceName(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return uuid.NewString()
}

// fileTypeFor picks the provider's upload category from the file suffix.
func fileTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3", ".wav", ".flac", ".ogg", ".m4a", ".aac":
		return "audio"
	case ".mp4", ".avi", ".mov", ".mkv", ".webm":
		return "video"
	default:
		return "image"
	}
}
