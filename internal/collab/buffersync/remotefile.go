package buffersync

import (
	"context"
	"fmt"

	"github.com/dshills/tandem/internal/collab/shared"
	"github.com/dshills/tandem/internal/engine/buffer"
)

// RemoteURI returns the virtual path of a document opened from a portal.
func RemoteURI(portalID string, doc shared.DocumentID) string {
	return fmt.Sprintf("tandem://%s/%s", portalID, doc)
}

// RemoteFile is the file adapter of a buffer backed by another site's
// document. It reports a virtual path, is never modified locally and
// delegates saving to the document owner.
type RemoteFile struct {
	uri   string
	saver shared.Saver
}

var _ buffer.FileAdapter = (*RemoteFile)(nil)

// NewRemoteFile creates an adapter. saver may be nil when the document
// cannot be saved remotely.
func NewRemoteFile(uri string, saver shared.Saver) *RemoteFile {
	return &RemoteFile{uri: uri, saver: saver}
}

// Path returns the virtual path.
func (f *RemoteFile) Path() string {
	return f.uri
}

// IsModified always reports false; the owner tracks modification.
func (f *RemoteFile) IsModified(*buffer.Buffer) bool {
	return false
}

// Save asks the document owner to save.
func (f *RemoteFile) Save(ctx context.Context, _ *buffer.Buffer) error {
	if f.saver == nil {
		return shared.NewOperationError("save", f.uri, shared.ErrSaveUnavailable)
	}
	return f.saver.RequestSave(ctx)
}
