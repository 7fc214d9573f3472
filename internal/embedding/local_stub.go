//go:build !llamacpp

package embedding

import (
	"context"
	"fmt"
)

// LocalProvider is a stub used when the llamacpp build tag is not set.
// It reports Available()=false so callers fall back to other providers.
type LocalProvider struct {
	modelPath string
}

// LocalConfig configures the local embedding provider.
type LocalConfig struct {
	// LibPath is the directory containing yzma shared libraries (.so/.dylib).
	LibPath string

	// ModelPath is the path to the GGUF embedding model file.
	ModelPath string

	// GPULayers is the number of layers to offload to GPU (0 = CPU only).
	GPULayers int
}

// NewLocalProvider creates a LocalProvider. In the stub build (without the
// llamacpp tag) the provider is always unavailable.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	return &LocalProvider{modelPath: cfg.ModelPath}
}

// Available returns false because local embedding is not compiled in without
// the llamacpp build tag.
func (p *LocalProvider) Available() bool {
	return false
}

// Embed returns an error because the local provider is not available in stub
// builds.
func (p *LocalProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("local embedding not available: build with -tags llamacpp")
}

func (p *LocalProvider) Version() string {
	return "local/unavailable"
}

func (p *LocalProvider) Dimension() int {
	return 0
}

// Close is a no-op for the stub provider.
func (p *LocalProvider) Close() error {
	return nil
}
