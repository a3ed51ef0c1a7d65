package offchain

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/warpfork/go-fsx"

	"github.com/moortools/moorage/moapi"
)

// FSDoc serves the "file" scheme from a filesystem, usually
// osfs.DirFS("/") when live but any fsx.FS for tests.  Locators are paths
// relative to that filesystem's root.
type FSDoc struct {
	fsys fsx.FS
	// uploadDir receives documents stored through Upload.
	uploadDir string
}

var _ Adapter = (*FSDoc)(nil)

func NewFSDoc(fsys fsx.FS, uploadDir string) *FSDoc {
	return &FSDoc{fsys: fsys, uploadDir: uploadDir}
}

// Download implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-read -- when the file is missing, unreadable,
//      or not a parsable document
func (a *FSDoc) Download(ctx context.Context, uri moapi.URI) (moapi.Document, error) {
	path := strings.TrimPrefix(uri.Locator(), "/")
	raw, err := fsx.ReadFile(a.fsys, path)
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	doc, err := moapi.DecodeDocument(raw)
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	return doc, nil
}

// Upload implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-write -- when the upload directory cannot be
//      created or written, or the document cannot be serialized
func (a *FSDoc) Upload(ctx context.Context, doc moapi.Document) (moapi.URI, error) {
	raw, err := moapi.EncodeDocument(doc)
	if err != nil {
		return "", moapi.ErrorRemoteWrite("file", err)
	}
	if err := fsx.MkdirAll(a.fsys, a.uploadDir, 0755); err != nil {
		return "", moapi.ErrorRemoteWrite("file", err)
	}
	path := filepath.Join(a.uploadDir, uuid.New().String()+".json")
	if err := fsx.WriteFile(a.fsys, path, 0644, raw); err != nil {
		return "", moapi.ErrorRemoteWrite("file", err)
	}
	return moapi.URI("file://" + path), nil
}
