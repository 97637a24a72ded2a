package domain

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	// DefaultInlineLimit is the largest payload sent as inline bytes.
	DefaultInlineLimit int64 = 20 << 20
	// MaxUploadSize is the largest payload accepted at all.
	MaxUploadSize int64 = 2 << 30
)

var ErrAttachmentTooLarge = errors.New("attachment too large")

// FileState mirrors the provider's processing state of an uploaded file.
type FileState string

const (
	FileStateProcessing FileState = "PROCESSING"
	FileStateActive     FileState = "ACTIVE"
	FileStateFailed     FileState = "FAILED"
)

// RemoteFile is the handle returned by a provider upload.
type RemoteFile struct {
	Name     string
	URI      string
	MIMEType string
	Size     int64
	State    FileState
}

// Attachment is the optional document or media a prompt is asked about.
// It carries either inline bytes or a remote file reference and is never
// modified after construction.
type Attachment struct {
	name     string
	mimeType string
	size     int64
	data     []byte
	remote   *RemoteFile
}

// NewInlineAttachment copies data into a new attachment. Payloads above limit
// are refused; callers must upload them and use NewRemoteAttachment instead.
func NewInlineAttachment(name, mimeType string, data []byte, limit int64) (*Attachment, error) {
	if limit <= 0 {
		limit = DefaultInlineLimit
	}
	if int64(len(data)) > limit {
		return nil, &Error{
			Kind:    KindRequestRejected,
			Message: fmt.Sprintf("%s is %d bytes, inline limit is %d", name, len(data), limit),
			Err:     ErrAttachmentTooLarge,
		}
	}
	if len(data) == 0 {
		return nil, &Error{Kind: KindRequestRejected, Message: "attachment is empty"}
	}

	return &Attachment{
		name:     name,
		mimeType: mimeType,
		size:     int64(len(data)),
		data:     bytes.Clone(data),
	}, nil
}

func NewRemoteAttachment(name string, file RemoteFile) *Attachment {
	return &Attachment{
		name:     name,
		mimeType: file.MIMEType,
		size:     file.Size,
		remote:   &file,
	}
}

func (a *Attachment) Name() string     { return a.name }
func (a *Attachment) MIMEType() string { return a.mimeType }
func (a *Attachment) Size() int64      { return a.size }
func (a *Attachment) IsRemote() bool   { return a.remote != nil }

// Data returns a copy of the inline payload, or nil for remote attachments.
func (a *Attachment) Data() []byte {
	return bytes.Clone(a.data)
}

// Head returns a copy of at most n leading bytes of the inline payload.
func (a *Attachment) Head(n int) []byte {
	if n > len(a.data) {
		n = len(a.data)
	}
	return bytes.Clone(a.data[:n])
}

// Remote returns the remote file handle, if any.
func (a *Attachment) Remote() (RemoteFile, bool) {
	if a.remote == nil {
		return RemoteFile{}, false
	}
	return *a.remote, true
}

// WithMIMEType returns a copy of the attachment tagged with another content type.
func (a *Attachment) WithMIMEType(mimeType string) *Attachment {
	c := *a
	c.mimeType = mimeType
	if a.remote != nil {
		r := *a.remote
		r.MIMEType = mimeType
		c.remote = &r
	}
	return &c
}
