package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProductImagePrimaryPath(t *testing.T) {
	fs := newFakeStorage()
	fs.objects["products/client-1/product-1/img-1"] = []byte("primary")
	fs.objects["uploads/img-1.png"] = []byte("legacy")

	ref := NewResolver(fs).ResolveProductImage(context.Background(), "client-1", "product-1", "img-1")
	require.NotNil(t, ref)
	assert.Equal(t, []byte("primary"), ref.Data)
}

func TestResolveProductImageLegacyFallbacks(t *testing.T) {
	fs := newFakeStorage()
	fs.objects["uploads/img-2.png"] = []byte("legacy-ext")

	ref := NewResolver(fs).ResolveProductImage(context.Background(), "client-1", "product-1", "img-2")
	require.NotNil(t, ref)
	assert.Equal(t, []byte("legacy-ext"), ref.Data)

	fs2 := newFakeStorage()
	fs2.objects["uploads/img-3"] = []byte("legacy-bare")

	ref = NewResolver(fs2).ResolveProductImage(context.Background(), "client-1", "product-1", "img-3")
	require.NotNil(t, ref)
	assert.Equal(t, []byte("legacy-bare"), ref.Data)
}

func TestResolveProductImageExhaustedReturnsNil(t *testing.T) {
	ref := NewResolver(newFakeStorage()).ResolveProductImage(context.Background(), "c", "p", "missing")
	assert.Nil(t, ref)
}

func TestResolveInspirationClientSessionPath(t *testing.T) {
	fs := newFakeStorage()
	fs.objects["clients/client-1/inspiration/insp-1"] = []byte("client-scoped")
	fs.objects["products/product-1/inspiration/insp-1"] = []byte("product-scoped")

	req := &GenerationRequest{
		ClientID:           "client-1",
		ProductID:          "product-1",
		InspirationImageID: "insp-1",
		IsClientSession:    true,
	}
	ref := NewResolver(fs).ResolveInspiration(context.Background(), req)
	require.NotNil(t, ref)
	assert.Equal(t, []byte("client-scoped"), ref.Data)

	req.IsClientSession = false
	ref = NewResolver(fs).ResolveInspiration(context.Background(), req)
	require.NotNil(t, ref)
	assert.Equal(t, []byte("product-scoped"), ref.Data)
}

func TestResolveInspirationAbsent(t *testing.T) {
	ref := NewResolver(newFakeStorage()).ResolveInspiration(context.Background(), &GenerationRequest{})
	assert.Nil(t, ref)
}
