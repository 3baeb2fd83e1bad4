// Package facematch decides whether two pictures show the same person by
// comparing face embeddings computed by the embedding server.
package facematch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrComparison marks a failure to compare two images (service down, bad image, ...).
	ErrComparison = errors.New("face comparison failed")
	// ErrNoFace is returned when a reference picture contains no detectable face.
	ErrNoFace = errors.New("no face detected")
)

// maxCachedTargets bounds the submitted-image cache; one batch needs one entry.
const maxCachedTargets = 32

// FaceEmbedder computes embeddings of every face in an image.
type FaceEmbedder interface {
	FaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error)
}

type targetEntry struct {
	done  chan struct{}
	faces [][]float32
	err   error
}

// Comparator matches a submitted picture against reference pictures.
// Face embeddings of a submitted picture are computed once and shared by all
// concurrent comparisons against it.
type Comparator struct {
	embedder     FaceEmbedder
	maxImageSize int

	mu      sync.Mutex
	targets map[[sha256.Size]byte]*targetEntry
}

// NewComparator creates a comparator. Images larger than maxImageSize on either
// edge are downscaled before upload; 0 disables resizing.
func NewComparator(embedder FaceEmbedder, maxImageSize int) *Comparator {
	return &Comparator{
		embedder:     embedder,
		maxImageSize: maxImageSize,
		targets:      make(map[[sha256.Size]byte]*targetEntry),
	}
}

// Compare reports whether reference shows a person present in target with a
// similarity score at or above threshold (0-100).
func (c *Comparator) Compare(ctx context.Context, target, reference []byte, threshold float64) (bool, error) {
	refEmbedding, err := c.ReferenceEmbedding(ctx, reference)
	if err != nil {
		return false, err
	}
	return c.CompareEmbedding(ctx, target, refEmbedding, threshold)
}

// CompareEmbedding is Compare with a precomputed reference embedding.
func (c *Comparator) CompareEmbedding(ctx context.Context, target []byte, reference []float32, threshold float64) (bool, error) {
	faces, err := c.targetFaces(ctx, target)
	if err != nil {
		return false, err
	}
	if len(faces) == 0 {
		return false, nil
	}
	return BestSimilarity(faces, reference) >= threshold, nil
}

// ReferenceEmbedding returns the embedding of the most confident face in a reference picture.
func (c *Comparator) ReferenceEmbedding(ctx context.Context, reference []byte) ([]float32, error) {
	resp, err := c.embed(ctx, reference)
	if err != nil {
		return nil, err
	}
	var best *FaceDetection
	for i := range resp.Faces {
		f := &resp.Faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if best == nil || f.DetScore > best.DetScore {
			best = f
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %w in reference picture", ErrComparison, ErrNoFace)
	}
	return best.Embedding, nil
}

func (c *Comparator) targetFaces(ctx context.Context, target []byte) ([][]float32, error) {
	key := sha256.Sum256(target)

	for {
		c.mu.Lock()
		entry, ok := c.targets[key]
		if !ok {
			if len(c.targets) >= maxCachedTargets {
				c.evictDoneLocked()
			}
			entry = &targetEntry{done: make(chan struct{})}
			c.targets[key] = entry
		}
		c.mu.Unlock()

		if !ok {
			entry.faces, entry.err = c.computeTargetFaces(ctx, target)
			if entry.err != nil {
				c.mu.Lock()
				delete(c.targets, key)
				c.mu.Unlock()
			}
			close(entry.done)
			return entry.faces, entry.err
		}

		select {
		case <-entry.done:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrComparison, ctx.Err())
		}
		// The computing caller may have been cancelled while we are still live.
		if entry.err != nil && isContextErr(entry.err) && ctx.Err() == nil {
			continue
		}
		return entry.faces, entry.err
	}
}

func (c *Comparator) computeTargetFaces(ctx context.Context, target []byte) ([][]float32, error) {
	resp, err := c.embed(ctx, target)
	if err != nil {
		return nil, err
	}
	faces := make([][]float32, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.Embedding) > 0 {
			faces = append(faces, f.Embedding)
		}
	}
	return faces, nil
}

func (c *Comparator) embed(ctx context.Context, img []byte) (*FaceResponse, error) {
	data, err := ResizeImage(img, c.maxImageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComparison, err)
	}
	resp, err := c.embedder.FaceEmbeddings(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComparison, err)
	}
	return resp, nil
}

// evictDoneLocked drops finished entries. Callers hold c.mu.
func (c *Comparator) evictDoneLocked() {
	for k, e := range c.targets {
		select {
		case <-e.done:
			delete(c.targets, k)
		default:
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
