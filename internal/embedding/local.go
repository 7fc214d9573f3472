//go:build llamacpp

package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// Package-level library initialization. llama.Load() and llama.Init() are
// process-global operations that must only happen once.
var (
	libOnce    sync.Once
	libLoadErr error
)

func loadLib(libPath string) error {
	libOnce.Do(func() {
		if err := llama.Load(libPath); err != nil {
			libLoadErr = fmt.Errorf("loading yzma shared library from %q: %w", libPath, err)
			return
		}
		llama.LogSet(llama.LogSilent())
		llama.Init()
	})
	return libLoadErr
}

// LocalProvider implements Provider using a local GGUF embedding model via
// hybridgroup/yzma (purego). No external API required. Thread-safe: all model
// access is serialized via mutex. Contexts are created per Embed() call and
// freed immediately.
type LocalProvider struct {
	libPath   string
	modelPath string
	gpuLayers int

	mu      sync.Mutex
	model   llama.Model
	vocab   llama.Vocab
	nEmbd   int32
	loaded  bool
	loadErr error
	once    sync.Once
}

// LocalConfig configures the local embedding provider.
type LocalConfig struct {
	// LibPath is the directory containing yzma shared libraries (.so/.dylib).
	// Falls back to YZMA_LIB env var at runtime.
	LibPath string

	// ModelPath is the path to the GGUF embedding model file.
	ModelPath string

	// GPULayers is the number of layers to offload to GPU (0 = CPU only).
	GPULayers int
}

// NewLocalProvider creates a LocalProvider. The model is not loaded until
// first use.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	libPath := cfg.LibPath
	if libPath == "" {
		libPath = os.Getenv("YZMA_LIB")
	}
	return &LocalProvider{
		libPath:   libPath,
		modelPath: cfg.ModelPath,
		gpuLayers: cfg.GPULayers,
	}
}

// Available returns true if both the library directory and model file exist
// on disk. This is a cheap check that does not load the model or library.
func (p *LocalProvider) Available() bool {
	if p.libPath == "" || p.modelPath == "" {
		return false
	}
	if info, err := os.Stat(p.libPath); err != nil || !info.IsDir() {
		return false
	}
	_, err := os.Stat(p.modelPath)
	return err == nil
}

// loadModel lazy-loads the embedding model on first use.
func (p *LocalProvider) loadModel() error {
	p.once.Do(func() {
		if p.modelPath == "" {
			p.loadErr = fmt.Errorf("no model path configured")
			return
		}
		if p.libPath == "" {
			p.loadErr = fmt.Errorf("no library path configured (set YZMA_LIB)")
			return
		}
		if err := loadLib(p.libPath); err != nil {
			p.loadErr = err
			return
		}

		modelParams := llama.ModelDefaultParams()
		gpuLayers := p.gpuLayers
		if gpuLayers > math.MaxInt32 {
			gpuLayers = math.MaxInt32
		}
		modelParams.NGpuLayers = int32(gpuLayers)

		model, err := llama.ModelLoadFromFile(p.modelPath, modelParams)
		if err != nil {
			p.loadErr = fmt.Errorf("loading model %s: %w", p.modelPath, err)
			return
		}
		if model == 0 {
			p.loadErr = fmt.Errorf("loading model %s: returned null handle", p.modelPath)
			return
		}

		p.model = model
		p.vocab = llama.ModelGetVocab(model)
		p.nEmbd = int32(llama.ModelNEmbd(model))
		p.loaded = true
	})
	return p.loadErr
}

// Embed returns a dense, L2-normalized vector for the given text.
// Creates a fresh llama context per call and frees it immediately.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.loadModel(); err != nil {
		return nil, fmt.Errorf("local embed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tokens := llama.Tokenize(p.vocab, text, true, true)

	ctxParams := llama.ContextDefaultParams()
	nTokens := len(tokens) + 64
	if nTokens > math.MaxUint32 {
		nTokens = math.MaxUint32
	}
	ctxParams.NCtx = uint32(nTokens)

	lctx, err := llama.InitFromModel(p.model, ctxParams)
	if err != nil {
		return nil, fmt.Errorf("creating embedding context: %w", err)
	}
	defer func() { _ = llama.Free(lctx) }()

	llama.SetEmbeddings(lctx, true)

	batch := llama.BatchGetOne(tokens)
	if _, err := llama.Decode(lctx, batch); err != nil {
		return nil, fmt.Errorf("decoding tokens: %w", err)
	}

	rawVec, err := llama.GetEmbeddingsSeq(lctx, 0, p.nEmbd)
	if err != nil {
		return nil, fmt.Errorf("getting embeddings: %w", err)
	}

	// Copy + L2 normalize (rawVec points to memory owned by lctx)
	vec := make([]float32, len(rawVec))
	copy(vec, rawVec)
	normalizeLocal(vec)

	return vec, nil
}

func (p *LocalProvider) Version() string {
	return "local/" + filepath.Base(p.modelPath)
}

// Dimension returns the model's embedding width, loading the model if needed.
// Returns 0 when the model cannot be loaded.
func (p *LocalProvider) Dimension() int {
	if err := p.loadModel(); err != nil {
		return 0
	}
	return int(p.nEmbd)
}

// Close releases the model resources. Safe to call multiple times.
// Does NOT call llama.Close() because that is process-global.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		_ = llama.ModelFree(p.model)
		p.model = 0
		p.vocab = 0
		p.nEmbd = 0
		p.loaded = false
		p.once = sync.Once{} // allow reloading after close
	}
	return nil
}

func normalizeLocal(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
}
