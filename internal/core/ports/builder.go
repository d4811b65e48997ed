package ports

import "context"

// ImageBuilder defines operations for producing container images.
type ImageBuilder interface {
	// BuildImage builds an image from a local Dockerfile context directory
	// and returns the image reference it was tagged with.
	BuildImage(ctx context.Context, contextDir string, imageName string) (string, error)

	// BuildFromRepo clones a git repository and builds an image from its
	// root Dockerfile.
	BuildFromRepo(ctx context.Context, repoURL string, imageName string) (string, error)
}
