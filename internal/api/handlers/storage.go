package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/elmam/edge-gateway/internal/domain"
	"github.com/elmam/edge-gateway/internal/downstream"
)

// StorageAPI is the object-storage surface the handlers need.
type StorageAPI interface {
	Upload(ctx context.Context, bucket, filename, mimeType string, data []byte, meta map[string]interface{}) (json.RawMessage, error)
	GetFileMetadata(ctx context.Context, fileID string) (*downstream.FileMetadata, error)
	Presign(ctx context.Context, fileID string, expiresIn int) (json.RawMessage, error)
}

// UploadAuthorizer covers the gates the storage routes use.
type UploadAuthorizer interface {
	RequireSuperAdmin(ctx context.Context, authCtx *domain.AuthContext) error
	RequireUploader(ctx context.Context, authCtx *domain.AuthContext) error
}

type StorageHandler struct {
	storage  StorageAPI
	authz    UploadAuthorizer
	bucket   string
	maxBytes int64
}

func NewStorageHandler(storage StorageAPI, authz UploadAuthorizer, bucket string, maxBytes int64) *StorageHandler {
	return &StorageHandler{
		storage:  storage,
		authz:    authz,
		bucket:   bucket,
		maxBytes: maxBytes,
	}
}

type uploadProofRequest struct {
	Filename string `json:"filename" validate:"required"`
	Base64   string `json:"base64" validate:"required"`
	MimeType string `json:"mimeType"`
}

type signFileRequest struct {
	FileID    string `json:"fileId" validate:"required"`
	ExpiresIn int    `json:"expiresIn" validate:"omitempty,min=60,max=604800"`
}

// UploadProof decodes a base64 payload and stores it in the proofs bucket.
// Non-platform callers get their account id attached as file metadata so the
// file stays attributable.
func (h *StorageHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	var req uploadProofRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireUploader(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(stripDataURI(req.Base64))
	if err != nil {
		sendFailure(w, http.StatusBadRequest, "invalid base64 payload")
		return
	}
	if int64(len(data)) > h.maxBytes {
		sendFailure(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var meta map[string]interface{}
	if !authCtx.IsSuperAdmin && authCtx.AccountID != "" {
		meta = map[string]interface{}{"account_id": authCtx.AccountID}
	}

	payload, err := h.storage.Upload(r.Context(), h.bucket, req.Filename, mimeType, data, meta)
	if err != nil {
		sendError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"file": payload,
	})
}

// SignFile issues a presigned download URL for a proof file. Only files in
// the proofs bucket are signable through this surface.
func (h *StorageHandler) SignFile(w http.ResponseWriter, r *http.Request) {
	var req signFileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	authCtx := callerContext(r)
	if err := h.authz.RequireSuperAdmin(r.Context(), &authCtx); err != nil {
		sendError(w, r, err)
		return
	}

	meta, err := h.storage.GetFileMetadata(r.Context(), req.FileID)
	if err != nil {
		sendError(w, r, err)
		return
	}
	if meta.BucketID != h.bucket {
		sendFailure(w, http.StatusForbidden, "file is not a subscription proof")
		return
	}

	expiresIn := req.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	payload, err := h.storage.Presign(r.Context(), req.FileID, expiresIn)
	if err != nil {
		sendError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"presigned": payload,
	})
}

// stripDataURI drops a leading data-URI header ("data:image/png;base64,")
// so clients may send either form.
func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}
