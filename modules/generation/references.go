package generation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"scenergy-server/modules/common/gemini"
	"scenergy-server/modules/common/storage"
)

// ObjectStorage is the slice of the storage client the orchestrator needs.
type ObjectStorage interface {
	Download(ctx context.Context, path string) (*storage.Object, error)
	DownloadURL(ctx context.Context, rawURL string) (*storage.Object, error)
	Upload(ctx context.Context, path string, data []byte, contentType string) error
}

// Resolver loads product and inspiration reference images, walking a path
// fallback chain for each. A missing reference is never fatal: the caller
// proceeds without it.
type Resolver struct {
	storage ObjectStorage
}

// NewResolver creates a resolver over the given storage client.
func NewResolver(store ObjectStorage) *Resolver {
	return &Resolver{storage: store}
}

// ResolveProductImage tries the client/product scoped path first, then the two
// legacy flat upload paths. Returns nil when every path misses.
func (r *Resolver) ResolveProductImage(ctx context.Context, clientID, productID, imageID string) *gemini.ReferenceImage {
	paths := []string{
		fmt.Sprintf("products/%s/%s/%s", clientID, productID, imageID),
		fmt.Sprintf("uploads/%s.png", imageID),
		fmt.Sprintf("uploads/%s", imageID),
	}

	for _, path := range paths {
		obj, err := r.storage.Download(ctx, path)
		if err == nil {
			return &gemini.ReferenceImage{Data: obj.Data, MIMEType: obj.ContentType}
		}
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		log.Printf("❌ Failed to load reference %s: %v", path, err)
		return nil
	}

	log.Printf("⚠️  Reference image %s not found on any path, proceeding without it", imageID)
	return nil
}

// ResolveInspiration loads the optional inspiration image, either from an
// external URL or from a session-scoped storage path.
func (r *Resolver) ResolveInspiration(ctx context.Context, req *GenerationRequest) *gemini.ReferenceImage {
	if req.InspirationImageURL != "" {
		obj, err := r.storage.DownloadURL(ctx, req.InspirationImageURL)
		if err != nil {
			log.Printf("⚠️  Failed to fetch inspiration URL: %v", err)
			return nil
		}
		return &gemini.ReferenceImage{Data: obj.Data, MIMEType: obj.ContentType}
	}

	if req.InspirationImageID == "" {
		return nil
	}

	var path string
	if req.IsClientSession {
		path = fmt.Sprintf("clients/%s/inspiration/%s", req.ClientID, req.InspirationImageID)
	} else {
		path = fmt.Sprintf("products/%s/inspiration/%s", req.ProductID, req.InspirationImageID)
	}

	obj, err := r.storage.Download(ctx, path)
	if err != nil {
		log.Printf("⚠️  Failed to load inspiration %s: %v", path, err)
		return nil
	}
	return &gemini.ReferenceImage{Data: obj.Data, MIMEType: obj.ContentType}
}
