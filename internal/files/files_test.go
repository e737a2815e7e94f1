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

package files

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vqhq/mergeworker/internal/shutdown"
)

var testOrg = uuid.Must(uuid.FromString("11111111-2222-3333-4444-555555555555"))

// fileStore serves both the reference API and the content URLs from a single
// test server.
type fileStore struct {
	t       *testing.T
	baseURL string
	refs    map[uuid.UUID]string // id -> name; contents are derived
}

func (s *fileStore) handler(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/v1/fileReferences/file"):
		s.handleUpload(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/fileReferences/"):
		s.handleResolve(w, r)
	case strings.HasSuffix(r.URL.Path, ".pdf"):
		name := strings.TrimSuffix(filepath.Base(r.URL.Path), ".pdf")
		fmt.Fprintf(w, "contents of %s", name)
	default:
		http.NotFound(w, r)
	}
}

func (s *fileStore) handleResolve(w http.ResponseWriter, r *http.Request) {
	assert.Equal(s.t, "key", r.Header.Get("X-API-KEY"))
	assert.Equal(s.t, testOrg.String(), r.URL.Query().Get("organisation"))

	id, err := uuid.FromString(filepath.Base(r.URL.Path))
	require.NoError(s.t, err)

	name, found := s.refs[id]
	if !found {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintf(w, `{"name":%q,"file":{"baseUrl":%q,"folder":"content","fileHash":%q,"extension":"pdf"}}`,
		name+".pdf", s.baseURL, name)
}

func (s *fileStore) handleUpload(w http.ResponseWriter, r *http.Request) {
	assert.Equal(s.t, "overwrite", r.URL.Query().Get("overwrite"))
	assert.Equal(s.t, "true", r.URL.Query().Get("runTriggers"))
	require.NoError(s.t, r.ParseMultipartForm(1<<20))
	assert.NotEmpty(s.t, r.MultipartForm.Value["folder_uuid"])
	assert.NotEmpty(s.t, r.MultipartForm.File["files_in"])
}

func newFileStore(t *testing.T, refs map[uuid.UUID]string) (*fileStore, *Client) {
	t.Helper()
	store := &fileStore{t: t, refs: refs}
	srv := httptest.NewServer(http.HandlerFunc(store.handler))
	t.Cleanup(srv.Close)
	store.baseURL = srv.URL
	return store, NewClient(srv.URL, "key", "pdf-merge/test", testOrg, 5*time.Second)
}

func TestFetchAllDownloadsEveryFile(t *testing.T) {
	a := uuid.Must(uuid.NewV4())
	b := uuid.Must(uuid.NewV4())
	_, client := newFileStore(t, map[uuid.UUID]string{a: "alpha", b: "beta"})

	dir := t.TempDir()
	paths, err := client.FetchAll(context.Background(), shutdown.NewCoordinator(), []uuid.UUID{a, b}, dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	got, err := os.ReadFile(filepath.Join(dir, "alpha.pdf"))
	require.NoError(t, err)
	require.Equal(t, "contents of alpha", string(got))
}

func TestFetchAllMissingReference(t *testing.T) {
	present := uuid.Must(uuid.NewV4())
	missing := uuid.Must(uuid.NewV4())
	_, client := newFileStore(t, map[uuid.UUID]string{present: "alpha"})

	_, err := client.FetchAll(context.Background(), shutdown.NewCoordinator(),
		[]uuid.UUID{present, missing}, t.TempDir())

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, missing, nf.FileUUID)
	require.Contains(t, nf.Error(), missing.String())
}

func TestFetchAllAbortsOnShutdown(t *testing.T) {
	a := uuid.Must(uuid.NewV4())
	_, client := newFileStore(t, map[uuid.UUID]string{a: "alpha"})

	coord := shutdown.NewCoordinator()
	coord.Signal(shutdown.ReasonInterrupt, "test shutdown")

	paths, err := client.FetchAll(context.Background(), coord, []uuid.UUID{a}, t.TempDir())
	require.NoError(t, err)
	require.Nil(t, paths, "a signalled fetch reports neither files nor an error")
}

func TestFetchAllStripsPathFromName(t *testing.T) {
	a := uuid.Must(uuid.NewV4())
	_, client := newFileStore(t, map[uuid.UUID]string{a: "../../escape"})

	dir := t.TempDir()
	paths, err := client.FetchAll(context.Background(), shutdown.NewCoordinator(), []uuid.UUID{a}, dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, dir, filepath.Dir(paths[0]),
		"server-supplied names must not escape the job directory")
}

func TestUpload(t *testing.T) {
	_, client := newFileStore(t, nil)

	path := filepath.Join(t.TempDir(), "merged.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))

	err := client.Upload(context.Background(), uuid.Must(uuid.NewV4()), []string{path})
	require.NoError(t, err)
}

func TestUploadErrorReport(t *testing.T) {
	_, client := newFileStore(t, nil)

	err := client.UploadErrorReport(context.Background(),
		uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()),
		errors.New("merge failed: page tree corrupt"))
	require.NoError(t, err)
}
