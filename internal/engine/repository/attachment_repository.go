package repository

import (
	"context"
	"fmt"
	"io"
	"time"

	"chat_sync_service/internal/engine/domain"
	"chat_sync_service/pkg/database"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// attachmentURLExpiry presigned URL 有效期
const attachmentURLExpiry = 24 * time.Hour

// AttachmentUpload one file handed to the upload collaborator
type AttachmentUpload struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

// AttachmentRepository opaque upload collaborator: upload object, get descriptor.
// Upload 失敗時整個送訊息流程中止，不會送出沒有附件的訊息。
type AttachmentRepository interface {
	Upload(ctx context.Context, name, mimeType string, size int64, body io.Reader) (*domain.Attachment, error)
}

type minioAttachmentRepository struct {
	mc *database.MinIOClient
}

// NewMinioAttachmentRepository create an AttachmentRepository
func NewMinioAttachmentRepository(mc *database.MinIOClient) AttachmentRepository {
	return &minioAttachmentRepository{mc: mc}
}

func (r *minioAttachmentRepository) Upload(ctx context.Context, name, mimeType string, size int64, body io.Reader) (*domain.Attachment, error) {
	// object name 帶 uuid 前綴避免同名覆蓋
	objectName := fmt.Sprintf("attachments/%s/%s", uuid.New().String(), name)

	_, err := r.mc.Client.PutObject(ctx, r.mc.BucketName, objectName, body, size, minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload attachment [%s]: %w", name, err)
	}

	url, err := r.mc.PresignGetURL(ctx, objectName, attachmentURLExpiry)
	if err != nil {
		return nil, err
	}

	return &domain.Attachment{
		URL:      url,
		Name:     name,
		MimeType: mimeType,
		Size:     size,
	}, nil
}
