package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dskvich/scholarai/pkg/converter"
	"github.com/dskvich/scholarai/pkg/domain"
)

// Attach turns an upload into an Attachment. Payloads within the inline
// limit are kept as bytes; larger ones are uploaded to the provider and
// polled until the provider reports them ready.
func (g *Gateway) Attach(ctx context.Context, name, mimeType string, size int64, r io.Reader) (*domain.Attachment, error) {
	if size > domain.MaxUploadSize {
		return nil, &domain.Error{
			Kind:    domain.KindRequestRejected,
			Message: fmt.Sprintf("%s is %d bytes, upload limit is %d", name, size, domain.MaxUploadSize),
			Err:     domain.ErrAttachmentTooLarge,
		}
	}

	br := bufio.NewReaderSize(r, converter.SniffLen)
	head, err := br.Peek(converter.SniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	normalized, err := converter.Normalize(mimeType, head)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindRequestRejected, Message: "unsupported file type", Err: err}
	}

	if size >= 0 && size <= g.cfg.InlineLimit {
		data, err := io.ReadAll(io.LimitReader(br, g.cfg.InlineLimit+1))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		slog.InfoContext(ctx, "Attachment kept inline", "name", name, "mimeType", normalized, "sizeBytes", len(data))
		return domain.NewInlineAttachment(name, normalized, data, g.cfg.InlineLimit)
	}

	slog.InfoContext(ctx, "Uploading attachment", "name", name, "mimeType", normalized, "sizeBytes", size)

	uploadCtx, cancel := context.WithTimeout(ctx, g.cfg.UploadTimeout)
	file, err := g.provider.Upload(uploadCtx, name, normalized, br)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(uploadCtx.Err(), context.DeadlineExceeded) {
			return nil, &domain.Error{
				Kind:    domain.KindTransientNetwork,
				Message: fmt.Sprintf("uploading %s took longer than %s", name, g.cfg.UploadTimeout),
				Err:     err,
			}
		}
		return nil, surface(providerError(err))
	}
	if file.Size == 0 {
		file.Size = size
	}

	file, err = g.waitActive(ctx, file)
	if err != nil {
		return nil, err
	}

	return domain.NewRemoteAttachment(name, file), nil
}

// waitActive polls an uploaded file until it is ACTIVE. The whole wait is
// bounded by IndexingTimeout and each status request by CallTimeout.
func (g *Gateway) waitActive(ctx context.Context, file domain.RemoteFile) (domain.RemoteFile, error) {
	pollCtx, cancel := context.WithTimeout(ctx, g.cfg.IndexingTimeout)
	defer cancel()

	timedOut := func() error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &domain.Error{
			Kind:    domain.KindIndexingTimeout,
			Message: fmt.Sprintf("%s not ready after %s", file.Name, g.cfg.IndexingTimeout),
		}
	}

	for polls := 0; file.State != domain.FileStateActive; polls++ {
		if file.State == domain.FileStateFailed {
			return file, &domain.Error{
				Kind:    domain.KindRequestRejected,
				Message: fmt.Sprintf("provider could not process %s", file.Name),
			}
		}

		slog.DebugContext(ctx, "Waiting for file indexing", "file", file.Name, "state", file.State, "polls", polls)
		if err := g.sleep(pollCtx, g.cfg.PollInterval); err != nil {
			return file, timedOut()
		}

		callCtx, cancelCall := context.WithTimeout(pollCtx, g.cfg.CallTimeout)
		next, err := g.provider.GetFile(callCtx, file.Name)
		callErr := callCtx.Err()
		cancelCall()
		if err != nil {
			if pollCtx.Err() != nil {
				return file, timedOut()
			}
			if errors.Is(callErr, context.DeadlineExceeded) {
				return file, &domain.Error{
					Kind:    domain.KindTransientNetwork,
					Message: fmt.Sprintf("status of %s not returned within %s", file.Name, g.cfg.CallTimeout),
					Err:     err,
				}
			}
			return file, surface(providerError(err))
		}
		if next.Size == 0 {
			next.Size = file.Size
		}
		file = next
	}

	slog.InfoContext(ctx, "File indexed", "file", file.Name, "uri", file.URI)
	return file, nil
}
