package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// StorageClient talks to the object storage service. Hosted deployments
// disagree on the multipart field names the upload endpoint accepts, so
// Upload walks a fixed list of shapes until one is accepted.
type StorageClient struct {
	BaseURL     string
	AdminSecret string
	HTTPClient  *Client
}

func NewStorageClient(baseURL, adminSecret string) *StorageClient {
	return &StorageClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AdminSecret: adminSecret,
		HTTPClient:  NewClient(DefaultClientConfig()),
	}
}

// FileMetadata is the subset of the stored file record we care about.
type FileMetadata struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	BucketID string `json:"bucketId"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type uploadShape struct {
	arrayFields bool
	includeMeta bool
}

/// Order matters: richest shape first, bare file last.
var uploadShapes = []uploadShape{
	{arrayFields: false, includeMeta: true},
	{arrayFields: true, includeMeta: true},
	{arrayFields: false, includeMeta: false},
	{arrayFields: true, includeMeta: false},
}

// Upload stores a file in bucket and returns the storage service's response
// payload verbatim. Field shapes are tried in order; only the last failure
// is surfaced.
func (c *StorageClient) Upload(ctx context.Context, bucket, filename, mimeType string, data []byte, meta map[string]interface{}) (json.RawMessage, error) {
	var lastErr error
	for _, shape := range uploadShapes {
		payload, err := c.tryUpload(ctx, bucket, filename, mimeType, data, meta, shape)
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *StorageClient) tryUpload(ctx context.Context, bucket, filename, mimeType string, data []byte, meta map[string]interface{}, shape uploadShape) (json.RawMessage, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	if err := form.WriteField("bucket-id", bucket); err != nil {
		return nil, err
	}

	fileField, metaField := "file", "metadata"
	if shape.arrayFields {
		fileField, metaField = "file[]", "metadata[]"
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, filename))
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}

	if shape.includeMeta && meta != nil {
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		if err := form.WriteField(metaField, string(metaJSON)); err != nil {
			return nil, err
		}
	}

	if err := form.Close(); err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Content-Type":          form.FormDataContentType(),
		"x-hasura-admin-secret": c.AdminSecret,
	}
	resp, err := c.HTTPClient.DoWithBody(ctx, http.MethodPost, c.BaseURL+"/files", &body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, upstreamError("storage upload", resp)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// GetFileMetadata fetches the stored record for fileID.
func (c *StorageClient) GetFileMetadata(ctx context.Context, fileID string) (*FileMetadata, error) {
	resp, err := c.HTTPClient.Get(ctx, c.BaseURL+"/files/"+fileID, map[string]string{
		"x-hasura-admin-secret": c.AdminSecret,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError("storage metadata", resp)
	}

	var meta FileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("storage metadata: decode response: %w", err)
	}
	return &meta, nil
}

// Presign requests a presigned URL for fileID. Some storage versions expect
// POST with a JSON body, older ones a bare GET; both are tried.
func (c *StorageClient) Presign(ctx context.Context, fileID string, expiresIn int) (json.RawMessage, error) {
	url := c.BaseURL + "/files/" + fileID + "/presignedurl"

	attempts := []func() (*http.Response, error){
		func() (*http.Response, error) {
			payload, _ := json.Marshal(map[string]int{"expiresIn": expiresIn})
			return c.HTTPClient.DoWithBody(ctx, http.MethodPost, c.BaseURL+"/files/"+fileID+"/presigned", bytes.NewReader(payload), map[string]string{
				"Content-Type":          "application/json",
				"x-hasura-admin-secret": c.AdminSecret,
			})
		},
		func() (*http.Response, error) {
			return c.HTTPClient.Get(ctx, url, map[string]string{
				"x-hasura-admin-secret": c.AdminSecret,
			})
		},
	}

	var lastErr error
	for _, attempt := range attempts {
		resp, err := attempt()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
			lastErr = upstreamError("storage presign", resp)
			resp.Body.Close()
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, upstreamError("storage presign", resp)
		}
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(payload), nil
	}
	return nil, lastErr
}
