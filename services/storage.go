package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"lex_dossier_app_go/config"
	"lex_dossier_app_go/logger"
)

// StorageProvider stores uploaded documents and attachments.
type StorageProvider interface {
	Upload(ctx context.Context, file *multipart.FileHeader, key string) (*StorageResult, error)
	UploadReader(ctx context.Context, reader io.Reader, key string, contentType string, size int64) (*StorageResult, error)
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error) // Returns reader, content-type, error
	// GetSignedURL returns a time-limited direct link. disposition, when
	// set, is echoed back as the response Content-Disposition.
	GetSignedURL(ctx context.Context, key string, expiration time.Duration, disposition string) (string, error)
}

// ErrSignedURLUnsupported is returned by backends that can only stream.
var ErrSignedURLUnsupported = errors.New("signed URLs are not supported by this storage")

// StorageResult contains information about the stored file
type StorageResult struct {
	Key      string
	FileName string
	FileSize int64
	MimeType string
}

// Storage is the global storage instance
var Storage StorageProvider

// InitializeStorage picks R2 when fully configured, local disk otherwise.
func InitializeStorage(cfg *config.Config) {
	if cfg.R2AccountID == "" || cfg.R2AccessKeyID == "" || cfg.R2SecretAccessKey == "" || cfg.R2BucketName == "" {
		Storage = NewLocalStorage(cfg.UploadDir)
		logger.Infof("Storage: local filesystem (%s)", cfg.UploadDir)
		return
	}

	r2, err := NewR2Storage(cfg)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err = r2.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.R2BucketName)})
	}
	if err != nil {
		logger.Warnf("R2 storage unavailable (%v), falling back to local storage", err)
		Storage = NewLocalStorage(cfg.UploadDir)
		return
	}

	Storage = r2
	logger.Infof("Storage: Cloudflare R2 (bucket: %s)", cfg.R2BucketName)
}

// R2Storage stores objects in a Cloudflare R2 bucket through the S3 API.
type R2Storage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

func NewR2Storage(cfg *config.Config) (*R2Storage, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	creds := credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Storage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.R2BucketName,
	}, nil
}

func (r *R2Storage) Upload(ctx context.Context, file *multipart.FileHeader, key string) (*StorageResult, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()
	return r.UploadReader(ctx, src, key, detectContentType(file), file.Size)
}

func (r *R2Storage) UploadReader(ctx context.Context, reader io.Reader, key string, contentType string, size int64) (*StorageResult, error) {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to R2: %w", err)
	}
	return &StorageResult{Key: key, FileName: filepath.Base(key), FileSize: size, MimeType: contentType}, nil
}

func (r *R2Storage) Delete(ctx context.Context, key string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from R2: %w", err)
	}
	return nil
}

func (r *R2Storage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object from R2: %w", err)
	}
	contentType := "application/octet-stream"
	if result.ContentType != nil {
		contentType = *result.ContentType
	}
	return result.Body, contentType, nil
}

func (r *R2Storage) GetSignedURL(ctx context.Context, key string, expiration time.Duration, disposition string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}
	if disposition != "" {
		input.ResponseContentDisposition = aws.String(disposition)
	}
	req, err := r.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return req.URL, nil
}

// LocalStorage keeps files under a base directory.
type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir}
}

// resolve joins key onto the base directory and rejects traversal.
func (l *LocalStorage) resolve(key string) (string, error) {
	base, err := filepath.Abs(l.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	full, err := filepath.Abs(filepath.Join(base, key))
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	if full != base && !strings.HasPrefix(full, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid storage key: path traversal detected")
	}
	return full, nil
}

func (l *LocalStorage) Upload(ctx context.Context, file *multipart.FileHeader, key string) (*StorageResult, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()
	return l.UploadReader(ctx, src, key, detectContentType(file), file.Size)
}

func (l *LocalStorage) UploadReader(ctx context.Context, reader io.Reader, key string, contentType string, size int64) (*StorageResult, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, reader)
	if err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	return &StorageResult{Key: key, FileName: filepath.Base(key), FileSize: written, MimeType: contentType}, nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	return file, contentTypeForName(key), nil
}

// GetSignedURL is not meaningful on disk; files are streamed by the API instead.
func (l *LocalStorage) GetSignedURL(ctx context.Context, key string, expiration time.Duration, disposition string) (string, error) {
	return "", ErrSignedURLUnsupported
}

func detectContentType(file *multipart.FileHeader) string {
	if ct := file.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return contentTypeForName(file.Filename)
}

func contentTypeForName(name string) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// GenerateStorageKey creates a unique storage key under prefix.
func GenerateStorageKey(prefix string, originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	return fmt.Sprintf("%s/%s_%d%s", strings.TrimSuffix(prefix, "/"), uuid.New().String(), time.Now().Unix(), ext)
}

// DocumentStorageKey files client uploads under clients/<owner> and staff uploads under admin/<uploader>.
func DocumentStorageKey(uploaderID string, uploaderIsStaff bool, ownerID, originalFilename string) string {
	if uploaderIsStaff {
		return GenerateStorageKey("admin/"+uploaderID, originalFilename)
	}
	return GenerateStorageKey("clients/"+ownerID, originalFilename)
}

// MessageAttachmentKey creates a key for a message attachment.
func MessageAttachmentKey(senderID, originalFilename string) string {
	return GenerateStorageKey("messages/"+senderID, originalFilename)
}
