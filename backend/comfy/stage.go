package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrStageFailed is returned when a remote input could not be staged onto
// the service.
var ErrStageFailed = errors.New("comfy: stage failed")

// Stage downloads the resource at uri and uploads it to the service's
// input store, returning the stored filename for use as a node input.
func (a *Adapter) Stage(ctx context.Context, uri string) (string, error) {
	body, name, err := a.fetch(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}
	defer body.Close()

	stored, err := a.upload(ctx, name, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStageFailed, err)
	}
	return stored, nil
}

// fetch retrieves a remote resource and derives a filename from its URL
// path, falling back to a generated name when the path has none.
func (a *Adapter) fetch(ctx context.Context, uri string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("fetch %s: status %d", uri, resp.StatusCode)
	}

	name := ""
	if u, err := url.Parse(uri); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "/" || name == "." {
		name = uuid.NewString()
	}
	return resp.Body, name, nil
}

// upload posts the content to /upload/image and returns the name the
// service stored it under.
func (a *Adapter) upload(ctx context.Context, name string, content io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("image", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.httpBase+"/upload/image", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload: status %d: %s", resp.StatusCode, truncate(data, 256))
	}

	var ack struct {
		Name      string `json:"name"`
		Subfolder string `json:"subfolder"`
	}
	if err := json.Unmarshal(data, &ack); err != nil || ack.Name == "" {
		return "", fmt.Errorf("upload: malformed response: %s", truncate(data, 256))
	}
	if ack.Subfolder != "" {
		return strings.TrimSuffix(ack.Subfolder, "/") + "/" + ack.Name, nil
	}
	return ack.Name, nil
}
