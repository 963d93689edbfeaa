package bill

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryStorage keeps receipts on Cloudinary. Keys are public IDs.
type CloudinaryStorage struct {
	cld    *cloudinary.Cloudinary
	folder string
	client *http.Client
}

// NewCloudinaryStorage builds a storage from a cloudinary:// URL
func NewCloudinaryStorage(cloudinaryURL, folder string) (*CloudinaryStorage, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("initializing cloudinary: %w", err)
	}
	return &CloudinaryStorage{
		cld:    cld,
		folder: folder,
		client: http.DefaultClient,
	}, nil
}

// Save uploads data and returns the public ID
func (c *CloudinaryStorage) Save(ctx context.Context, name string, data []byte) (string, error) {
	publicID := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	result, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID: publicID,
		Folder:   c.folder,
	})
	if err != nil {
		return "", fmt.Errorf("uploading to cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("uploading to cloudinary: %s", result.Error.Message)
	}
	if result.PublicID == "" {
		return "", fmt.Errorf("uploading to cloudinary: no public id returned")
	}
	return result.PublicID, nil
}

// Get downloads the file behind key
func (c *CloudinaryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete destroys the uploaded asset
func (c *CloudinaryStorage) Delete(ctx context.Context, key string) error {
	if _, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: key}); err != nil {
		return fmt.Errorf("deleting from cloudinary: %w", err)
	}
	return nil
}

// URL returns the delivery URL for the image, or "" if it cannot be built.
func (c *CloudinaryStorage) URL(key string) string {
	img, err := c.cld.Image(key)
	if err != nil {
		return ""
	}
	u, err := img.String()
	if err != nil {
		return ""
	}
	return u
}
