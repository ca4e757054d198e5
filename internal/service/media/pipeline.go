package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/domain/models"
	"github.com/mamadbah2/chatrelay/pkg/clients/whatsapp"
)

const (
	defaultContentType = "application/octet-stream"
	sniffLen           = 3072
)

// ErrNoMedia is returned when a request carries no media reference.
var ErrNoMedia = errors.New("message has no media id")

// Fetcher resolves and downloads provider-hosted media.
type Fetcher interface {
	GetMediaURL(ctx context.Context, mediaID, token string) (string, error)
	DownloadMedia(ctx context.Context, mediaURL, token string) (*whatsapp.MediaDownload, error)
}

// ObjectStore persists blobs and exposes them publicly.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

// Request identifies one inbound attachment.
type Request struct {
	PhoneID     string
	Token       string
	MessageType models.MessageType
	Media       *models.MediaContent
}

// Pipeline copies provider media into the object store.
type Pipeline struct {
	fetcher   Fetcher
	store     ObjectStore
	namespace string
	logger    *zap.Logger
}

// NewPipeline wires a media pipeline. namespace prefixes every object key.
func NewPipeline(fetcher Fetcher, store ObjectStore, namespace string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:   fetcher,
		store:     store,
		namespace: strings.Trim(namespace, "/"),
		logger:    logger,
	}
}

// ObjectKey returns the storage key for a media id received on a phone line.
// The key is stable so a second upload of the same media overwrites the first.
func (p *Pipeline) ObjectKey(phoneID, mediaID string) string {
	return path.Join(p.namespace, phoneID, mediaID)
}

// Process resolves, downloads and stores the attachment, then describes it.
// Any failure is a *StepError and nothing is retried.
func (p *Pipeline) Process(ctx context.Context, req Request) (models.MediaDescriptor, error) {
	if req.Media == nil || strings.TrimSpace(req.Media.ID) == "" {
		return models.MediaDescriptor{}, ErrNoMedia
	}
	mediaID := req.Media.ID

	mediaURL, err := p.fetcher.GetMediaURL(ctx, mediaID, req.Token)
	if err != nil {
		return models.MediaDescriptor{}, &StepError{Step: StepResolveURL, MediaID: mediaID, Err: err}
	}

	download, err := p.fetcher.DownloadMedia(ctx, mediaURL, req.Token)
	if err != nil {
		return models.MediaDescriptor{}, &StepError{Step: StepFetch, MediaID: mediaID, Err: err}
	}
	defer download.Body.Close()

	var body io.Reader = download.Body
	contentType := download.ContentType
	if contentType == "" {
		contentType, body, err = sniff(download.Body)
		if err != nil {
			return models.MediaDescriptor{}, &StepError{Step: StepFetch, MediaID: mediaID, Err: err}
		}
	}

	key := p.ObjectKey(req.PhoneID, mediaID)
	if err := p.store.Put(ctx, key, body, download.ContentLength, contentType); err != nil {
		return models.MediaDescriptor{}, &StepError{Step: StepUpload, MediaID: mediaID, Err: err}
	}

	descriptor := models.MediaDescriptor{
		MediaType: string(req.MessageType),
		URL:       p.store.PublicURL(key),
		Caption:   req.Media.Caption,
	}
	if req.MessageType == models.MessageTypeDocument {
		descriptor.Filename = req.Media.Filename
	}

	p.logger.Info("media stored",
		zap.String("media_id", mediaID),
		zap.String("key", key),
		zap.String("content_type", contentType),
		zap.Int64("size", download.ContentLength),
	)
	return descriptor, nil
}

// sniff detects the content type from the first bytes of body and returns a
// reader that still yields the whole stream.
func sniff(body io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]

	contentType := defaultContentType
	if n > 0 {
		contentType = mimetype.Detect(head).String()
	}
	return contentType, io.MultiReader(bytes.NewReader(head), body), nil
}
