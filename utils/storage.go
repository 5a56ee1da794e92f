package utils

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// NewGCSClient builds a storage client from the service-account credentials
// file referenced by CREDENTIALS_FILE_LOCATION, returning the configured
// bucket alongside it.
func NewGCSClient(c *gin.Context) (*storage.Client, string, error) {
	bucket := os.Getenv("GCS_BUCKET")
	credentialsPath := os.Getenv("CREDENTIALS_FILE_LOCATION")
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	client, err := storage.NewClient(c, option.WithAuthCredentialsFile(option.ServiceAccount, filepath.Join(wd, credentialsPath)))
	if err != nil {
		return nil, "", err
	}
	return client, bucket, nil
}

// UploadAvatarToGCS stores a validated avatar image under
// avatars/<userID>/<ts>-<uuid><ext> and returns its public URL.
func UploadAvatarToGCS(
	ctx context.Context,
	client *storage.Client,
	bucketName string,
	userID string,
	fileHeader *multipart.FileHeader,
) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext == "" {
		ext = ".bin"
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	objectName := fmt.Sprintf(
		"avatars/%s/%d-%s%s",
		userID,
		time.Now().UTC().Unix(),
		uuid.New().String(),
		ext,
	)

	obj := client.Bucket(bucketName).Object(objectName)
	writer := obj.NewWriter(ctx)

	ct := fileHeader.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(ext)
		if ct == "" {
			ct = "application/octet-stream"
		}
	}
	writer.ContentType = ct
	writer.CacheControl = "no-cache"

	if _, err := io.Copy(writer, file); err != nil {
		_ = writer.Close()
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucketName, objectName), nil
}

// FileValidator gates uploads on extension, sniffed MIME type and size.
type FileValidator struct {
	allowedExt  map[string]bool
	allowedMime map[string]bool
	maxSize     int64
}

// NewImageValidator reads the allowed extension/MIME lists and size cap
// from the environment, defaulting to common web image types and 5 MB.
func NewImageValidator() *FileValidator {
	allowedExt := splitLowerSet(os.Getenv("ALLOWED_FILE_EXTENSIONS"))
	if len(allowedExt) == 0 {
		allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
	}

	allowedMime := splitLowerSet(os.Getenv("ALLOWED_FILE_MIME_TYPES"))
	if len(allowedMime) == 0 {
		allowedMime = map[string]bool{"image/jpeg": true, "image/png": true, "image/webp": true}
	}

	sizeMB := 5
	if v := os.Getenv("MAX_UPLOAD_SIZE_MB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			sizeMB = parsed
		}
	}

	return &FileValidator{
		allowedExt:  allowedExt,
		allowedMime: allowedMime,
		maxSize:     int64(sizeMB) << 20,
	}
}

func splitLowerSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(strings.ToLower(item)); item != "" {
			set[item] = true
		}
	}
	return set
}

func (v *FileValidator) ValidateFile(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > v.maxSize {
		return "", fmt.Errorf("file too large (max %d MB)", v.maxSize>>20)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !v.allowedExt[ext] {
		return "", fmt.Errorf("invalid file extension")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	buffer := make([]byte, 512)
	if _, err = file.Read(buffer); err != nil {
		return "", fmt.Errorf("failed to read file header")
	}
	if _, err = file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("failed to reset file reader")
	}

	detectedMime := strings.ToLower(http.DetectContentType(buffer))
	if !v.allowedMime[detectedMime] {
		return "", fmt.Errorf("invalid file type")
	}

	return detectedMime, nil
}
