// Package storage offloads oversized validation-detail payloads to
// blob storage so parameter records and notifications stay small.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/wehubfusion/Argus/pkg/model"
)

// DefaultOffloadThreshold is the serialized-detail size above which the
// diff list moves to blob storage.
const DefaultOffloadThreshold = 64 * 1024

// Offloader replaces large inline diff lists with a blob reference.
// Upload failures leave the detail inline; losing a diff list to a
// storage hiccup would be worse than a fat record.
type Offloader struct {
	client    BlobStorageClient
	threshold int
	logger    *zap.Logger
}

// NewAzureOffloader creates an offloader backed by Azure Blob Storage.
// The Azure client stays behind this constructor; callers only ever
// hold the Offloader.
func NewAzureOffloader(connectionString, container string, threshold int, logger *zap.Logger) (*Offloader, error) {
	client, err := newAzureBlobClient(connectionString, container, logger)
	if err != nil {
		return nil, err
	}
	return NewOffloader(client, threshold, logger), nil
}

// NewOffloader creates an offloader. threshold <= 0 uses the default.
func NewOffloader(client BlobStorageClient, threshold int, logger *zap.Logger) *Offloader {
	if threshold <= 0 {
		threshold = DefaultOffloadThreshold
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Offloader{client: client, threshold: threshold, logger: logger}
}

// OffloadDetail moves the parameter's diff list to blob storage when it
// exceeds the threshold, leaving a BlobReference in its place.
func (o *Offloader) OffloadDetail(ctx context.Context, p *model.Parameter) {
	if p.Detail == nil || len(p.Detail.Diffs) == 0 {
		return
	}

	data, err := json.Marshal(p.Detail.Diffs)
	if err != nil {
		o.logger.Warn("Failed to serialize validation detail",
			zap.String("session_id", p.SessionID),
			zap.String("parameter_path", p.Path),
			zap.Error(err))
		return
	}
	if len(data) <= o.threshold {
		return
	}

	blobPath := detailBlobPath(p)
	url, err := o.client.UploadDetail(ctx, blobPath, data, map[string]string{
		"sessionid":     p.SessionID,
		"page":          p.PageName,
		"tab":           p.TabName,
		"parameterpath": p.Path,
	})
	if err != nil {
		o.logger.Warn("Failed to offload validation detail, keeping inline",
			zap.String("session_id", p.SessionID),
			zap.String("parameter_path", p.Path),
			zap.Int("size_bytes", len(data)),
			zap.Error(err))
		return
	}

	p.Detail = &model.ValidationDetail{
		BlobReference: &model.BlobReference{URL: url, SizeBytes: len(data)},
	}
}

// detailBlobPath builds a stable blob path for one parameter's detail.
// The path component is hashed: parameter paths may contain characters
// blob names reject.
func detailBlobPath(p *model.Parameter) string {
	h := sha256.Sum256([]byte(p.Path))
	return fmt.Sprintf("sessions/%s/%s/%s/%s.json",
		p.SessionID, p.PageName, p.TabName, hex.EncodeToString(h[:8]))
}
