package document

import (
	"context"
	"io"
	"testing"

	"github.com/abduss/benefits/internal/request"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayStreamsUploadedDocument(t *testing.T) {
	h := newHarness(t)
	req, owner := h.pendingRequest()
	file, payload := pdfFile(t, "receipt.pdf", 3*testChunkSize+17)
	result, err := h.supervisor.UploadAll(context.Background(), req.ID, owner, []FileInput{file})
	require.NoError(t, err)
	objectID := result.Uploaded[0].Reference.ID

	dl, err := h.gateway.Open(context.Background(), objectID, owner)
	require.NoError(t, err)
	defer dl.Body.Close()

	got, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "receipt.pdf", dl.Name())
	assert.Equal(t, "application/pdf", dl.Object.ContentType)
	assert.Equal(t, int64(len(payload)), dl.Object.Length)
}

func TestGatewayAccessRules(t *testing.T) {
	h := newHarness(t)
	req, owner := h.pendingRequest()
	ref := uploadOne(t, h, req, owner)

	_, err := h.gateway.Open(context.Background(), ref.ID, request.Actor{ID: uuid.New()})
	require.ErrorIs(t, err, ErrForbidden)

	dl, err := h.gateway.Open(context.Background(), ref.ID, request.Actor{ID: uuid.New(), IsAdmin: true})
	require.NoError(t, err)
	require.NoError(t, dl.Body.Close())
}

func TestGatewayMissingObject(t *testing.T) {
	h := newHarness(t)
	_, owner := h.pendingRequest()

	_, err := h.gateway.Open(context.Background(), uuid.New(), owner)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGatewayStatus(t *testing.T) {
	h := newHarness(t)
	req, owner := h.pendingRequest()
	ref := uploadOne(t, h, req, owner)

	st, err := h.gateway.Status(context.Background(), ref.ID, owner)
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.True(t, st.Finalized)
	assert.True(t, st.InRequest)
	assert.True(t, st.CanAccess)
	require.NotNil(t, st.Request)
	assert.Equal(t, req.ID, st.Request.ID)
	require.NotNil(t, st.File)
	assert.Equal(t, ref.Size, st.File.Size)

	st, err = h.gateway.Status(context.Background(), ref.ID, request.Actor{ID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.False(t, st.CanAccess)
	assert.Nil(t, st.File)
	assert.Nil(t, st.Request)

	st, err = h.gateway.Status(context.Background(), uuid.New(), owner)
	require.NoError(t, err)
	assert.False(t, st.Exists)
}
