// Пакет s3blob — blob-хранилище в S3-совместимом бакете (AWS S3, MinIO).
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/propimentel/flr-wb/internal/storage/blobstore"
)

// Options — параметры подключения к S3.
type Options struct {
	Bucket string
	Region string
	// Endpoint — адрес S3-совместимого сервера; пусто для AWS
	Endpoint string
	// ForcePathStyle — адресация bucket в пути (MinIO)
	ForcePathStyle bool
}

// Store — blob-хранилище в бакете S3.
type Store struct {
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
	bucket   string
	logger   *slog.Logger
}

// Open создаёт сессию AWS и Store. Учётные данные берутся из стандартной
// цепочки AWS (переменные окружения, профиль, IAM-роль).
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("имя S3 бакета не задано")
	}

	cfg := &aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(opts.ForcePathStyle),
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AWS сессии: %w", err)
	}

	client := s3.New(sess)
	return New(client, s3manager.NewUploaderWithClient(client), opts.Bucket, logger), nil
}

// New создаёт Store с готовыми клиентами.
func New(client s3iface.S3API, uploader s3manageriface.UploaderAPI, bucket string, logger *slog.Logger) *Store {
	return &Store{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		logger:   logger.With(slog.String("component", "blobstore_s3")),
	}
}

// Put загружает поток через s3manager (multipart для больших объектов).
func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ошибка загрузки объекта %s: %w", key, err)
	}
	return out.Location, nil
}

// Get открывает объект на чтение.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", key, err)
	}
	return out.Body, nil
}

// Exists проверяет наличие объекта через HeadObject.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки объекта %s: %w", key, err)
	}
	return true, nil
}

// Delete удаляет объект. S3 не сообщает об отсутствии объекта при удалении.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// Ping проверяет доступность бакета через HeadBucket.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("бакет %s недоступен: %w", s.bucket, err)
	}
	return nil
}

// Name возвращает имя бакета.
func (s *Store) Name() string {
	return s.bucket
}

// isNotFound распознаёт NoSuchKey (GetObject) и 404 без тела (HeadObject).
func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

var _ blobstore.Store = (*Store)(nil)
