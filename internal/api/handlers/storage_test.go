package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/elmam/edge-gateway/internal/domain"
	"github.com/elmam/edge-gateway/internal/downstream"
)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Upload(ctx context.Context, bucket, filename, mimeType string, data []byte, meta map[string]interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, bucket, filename, mimeType, data, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockStorage) GetFileMetadata(ctx context.Context, fileID string) (*downstream.FileMetadata, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*downstream.FileMetadata), args.Error(1)
}

func (m *mockStorage) Presign(ctx context.Context, fileID string, expiresIn int) (json.RawMessage, error) {
	args := m.Called(ctx, fileID, expiresIn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type mockUploadAuthz struct {
	mock.Mock
}

func (m *mockUploadAuthz) RequireSuperAdmin(ctx context.Context, authCtx *domain.AuthContext) error {
	return m.Called(ctx, authCtx).Error(0)
}

func (m *mockUploadAuthz) RequireUploader(ctx context.Context, authCtx *domain.AuthContext) error {
	return m.Called(ctx, authCtx).Error(0)
}

const proofBucket = "subscription-proofs"

func newStorageHandler(storage *mockStorage, authz *mockUploadAuthz) *StorageHandler {
	return NewStorageHandler(storage, authz, proofBucket, 10<<20)
}

func TestUploadProofTagsAccountForNonSuperAdmin(t *testing.T) {
	storage := &mockStorage{}
	authz := &mockUploadAuthz{}
	authz.On("RequireUploader", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			authCtx := args.Get(1).(*domain.AuthContext)
			authCtx.Role = "owner"
			authCtx.AccountID = "acc-1"
		}).Return(nil)

	content := []byte("proof document")
	storage.On("Upload", mock.Anything, proofBucket, "proof.pdf", "application/pdf",
		content, map[string]interface{}{"account_id": "acc-1"}).
		Return(json.RawMessage(`{"id":"file-1"}`), nil)

	h := newStorageHandler(storage, authz)
	rec := postJSON(h.UploadProof, `{
		"filename": "proof.pdf",
		"mimeType": "application/pdf",
		"base64": "`+base64.StdEncoding.EncodeToString(content)+`"
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope["ok"])
	storage.AssertExpectations(t)
}

func TestUploadProofSuperAdminHasNoMetadata(t *testing.T) {
	storage := &mockStorage{}
	authz := &mockUploadAuthz{}
	authz.On("RequireUploader", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.AuthContext).IsSuperAdmin = true
		}).Return(nil)

	content := []byte("x")
	storage.On("Upload", mock.Anything, proofBucket, "a.bin", "application/octet-stream",
		content, map[string]interface{}(nil)).
		Return(json.RawMessage(`{"id":"file-2"}`), nil)

	h := newStorageHandler(storage, authz)
	rec := postJSON(h.UploadProof, `{
		"filename": "a.bin",
		"base64": "`+base64.StdEncoding.EncodeToString(content)+`"
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	storage.AssertExpectations(t)
}

func TestUploadProofStripsDataURIPrefix(t *testing.T) {
	storage := &mockStorage{}
	authz := &mockUploadAuthz{}
	authz.On("RequireUploader", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.AuthContext).IsSuperAdmin = true
		}).Return(nil)

	content := []byte("png bytes")
	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(content)
	storage.On("Upload", mock.Anything, proofBucket, "a.png", "image/png",
		content, map[string]interface{}(nil)).
		Return(json.RawMessage(`{"id":"file-3"}`), nil)

	h := newStorageHandler(storage, authz)
	rec := postJSON(h.UploadProof, `{
		"filename": "a.png",
		"mimeType": "image/png",
		"base64": "`+encoded+`"
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	storage.AssertExpectations(t)
}

func TestUploadProofOversizedIs413(t *testing.T) {
	storage := &mockStorage{}
	authz := &mockUploadAuthz{}
	authz.On("RequireUploader", mock.Anything, mock.Anything).Return(nil)

	big := make([]byte, 2048)
	h := NewStorageHandler(storage, authz, proofBucket, 1024)
	rec := postJSON(h.UploadProof, `{
		"filename": "big.bin",
		"base64": "`+base64.StdEncoding.EncodeToString(big)+`"
	}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadProofInvalidBase64Is400(t *testing.T) {
	storage := &mockStorage{}
	authz := &mockUploadAuthz{}
	authz.On("RequireUploader", mock.Anything, mock.Anything).Return(nil)

	h := newStorageHandler(storage, authz)
	rec := postJSON(h.UploadProof, `{"filename": "a.bin", "base64": "%%%not-base64%%%"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadProofForbiddenWithoutRole(t *testing.T) {
	storage := &mockStorage{}
	authz := &mockUploadAuthz{}
	authz.On("RequireUploader", mock.Anything, mock.Anything).Return(domain.ErrForbidden)

	h := newStorageHandler(storage, authz)
	rec := postJSON(h.UploadProof, `{"filename": "a.bin", "base64": "aGk="}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignFileDefaultsExpiry(t *testing.T) {
	storage := &mockStorage{}
	authz := &mockUploadAuthz{}
	authz.On("RequireSuperAdmin", mock.Anything, mock.Anything).Return(nil)
	storage.On("GetFileMetadata", mock.Anything, "file-1").
		Return(&downstream.FileMetadata{ID: "file-1", BucketID: proofBucket}, nil)
	storage.On("Presign", mock.Anything, "file-1", 3600).
		Return(json.RawMessage(`{"url":"https://signed"}`), nil)

	h := newStorageHandler(storage, authz)
	rec := postJSON(h.SignFile, `{"fileId": "file-1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	storage.AssertExpectations(t)
}

func TestSignFileWrongBucketIs403(t *testing.T) {
	storage := &mockStorage{}
	authz := &mockUploadAuthz{}
	authz.On("RequireSuperAdmin", mock.Anything, mock.Anything).Return(nil)
	storage.On("GetFileMetadata", mock.Anything, "file-9").
		Return(&downstream.FileMetadata{ID: "file-9", BucketID: "avatars"}, nil)

	h := newStorageHandler(storage, authz)
	rec := postJSON(h.SignFile, `{"fileId": "file-9"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	storage.AssertNotCalled(t, "Presign", mock.Anything, mock.Anything, mock.Anything)
}
