// Copyright 2026 VQ Technologies Ltd
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package files moves documents between the VQ file store and the local
// working directory of a job.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"

	"github.com/vqhq/mergeworker/internal/shutdown"
)

// Parallel content downloads per job.
const downloadConcurrency = 4

// NotFoundError marks a referenced file that no longer exists. It is a
// normal job failure, not a worker fault.
type NotFoundError struct {
	FileUUID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("the file uuid %s cannot be found", e.FileUUID)
}

// Client talks to the file-reference API and the content store behind it.
type Client struct {
	baseURL      string
	apiKey       string
	userAgent    string
	organisation uuid.UUID
	httpc        *http.Client
}

func NewClient(baseURL, apiKey, userAgent string, organisation uuid.UUID, timeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		userAgent:    userAgent,
		organisation: organisation,
		httpc:        &http.Client{Timeout: timeout},
	}
}

type fileReference struct {
	Name string `json:"name"`
	File struct {
		BaseURL   string `json:"baseUrl"`
		Folder    string `json:"folder"`
		FileHash  string `json:"fileHash"`
		Extension string `json:"extension"`
	} `json:"file"`
}

func (r *fileReference) contentURL() string {
	return r.File.BaseURL + "/" + r.File.Folder + "/" + r.File.FileHash + "." + r.File.Extension
}

// FetchAll resolves each file reference and downloads the contents into dir.
// It checks the coordinator before each file and returns (nil, nil) when a
// shutdown arrives mid-way; the caller treats that as an early abort, not an
// error. A 404 on any reference is a NotFoundError.
func (c *Client) FetchAll(ctx context.Context, coord *shutdown.Coordinator, ids []uuid.UUID, dir string) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)

	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		if coord.Signaled() {
			// Let in-flight downloads finish; their files are discarded
			// with the job directory.
			_ = g.Wait()
			return nil, nil
		}

		ref, err := c.resolve(ctx, id)
		if err != nil {
			_ = g.Wait()
			return nil, err
		}

		// The store controls ref.Name; strip any path components it
		// might smuggle in.
		dest := filepath.Join(dir, filepath.Base(ref.Name))
		src := ref.contentURL()
		paths = append(paths, dest)
		g.Go(func() error {
			return c.download(gctx, src, dest)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (c *Client) resolve(ctx context.Context, id uuid.UUID) (*fileReference, error) {
	u := fmt.Sprintf("%s/api/v1/fileReferences/%s?organisation=%s",
		c.baseURL, id, c.organisation)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	res, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolving file %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{FileUUID: id}
	}
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("resolving file %s: unexpected status %d", id, res.StatusCode)
	}

	var ref fileReference
	if err := json.NewDecoder(res.Body).Decode(&ref); err != nil {
		return nil, fmt.Errorf("resolving file %s: %w", id, err)
	}
	return &ref, nil
}

// download streams one content URL to dest. Content URLs are pre-signed, so
// no API headers go out here.
func (c *Client) download(ctx context.Context, src, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", filepath.Base(dest), err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("downloading %s: unexpected status %d", filepath.Base(dest), res.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, res.Body); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return out.Close()
}

// Upload pushes local files into the given folder, overwriting same-named
// entries and letting the platform run its triggers.
func (c *Client) Upload(ctx context.Context, folderID uuid.UUID, paths []string) error {
	u := fmt.Sprintf("%s/api/v1/fileReferences/file?overwrite=overwrite&runTriggers=true&organisation=%s",
		c.baseURL, c.organisation)

	for _, path := range paths {
		if err := c.uploadOne(ctx, u, folderID, path); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) uploadOne(ctx context.Context, u string, folderID uuid.UUID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("files_in", filepath.Base(path))
		if err == nil {
			if _, cerr := io.Copy(part, f); cerr != nil {
				err = cerr
			}
		}
		if err == nil {
			err = mw.WriteField("folder_uuid", folderID.String())
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", filepath.Base(path), err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("uploading %s: unexpected status %d", filepath.Base(path), res.StatusCode)
	}
	return nil
}

// UploadErrorReport drops a plain-text error log into the destination folder
// so the failure is visible next to where the output would have landed.
func (c *Client) UploadErrorReport(ctx context.Context, folderID, taskID uuid.UUID, workErr error) error {
	dir, err := os.MkdirTemp("", "error-report-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	name := fmt.Sprintf("error_log_%s_%s.txt", taskID, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(workErr.Error()+"\n"), 0o644); err != nil {
		return err
	}

	return c.Upload(ctx, folderID, []string{path})
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
}
