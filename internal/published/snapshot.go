// Licensed under the MIT License. See LICENSE file in the project root for details.

package published

import (
	"context"
	"sync"
)

// PublishedSnapshot is the per-request view of the published stores. It pins
// store generations on first use and keeps them until Resync or Close.
type PublishedSnapshot struct {
	factory *ElementsFactory
	preview bool

	mu       sync.Mutex
	elements *Elements
	closed   bool
}

// Preview reports the default preview mode.
func (p *PublishedSnapshot) Preview() bool {
	return p.preview
}

// Elements returns the memoized elements for the default preview mode,
// creating them on first use.
func (p *PublishedSnapshot) Elements(ctx context.Context) (*Elements, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elementsLocked(ctx)
}

func (p *PublishedSnapshot) elementsLocked(ctx context.Context) (*Elements, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.elements == nil {
		e, err := p.factory.GetElements(ctx, p.preview)
		if err != nil {
			return nil, err
		}
		p.elements = e
	}
	return p.elements, nil
}

// ForcedPreview runs fn with elements in the given preview mode, whatever the
// default of the snapshot is. The elements passed to fn are only valid during
// the call.
func (p *PublishedSnapshot) ForcedPreview(ctx context.Context, preview bool, fn func(e *Elements) error) error {
	p.mu.Lock()
	e, err := p.elementsLocked(ctx)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(e.withPreview(preview))
}

// Resync drops the memoized elements so the next access sees the latest
// generations.
func (p *PublishedSnapshot) Resync(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elements != nil {
		p.elements.Close(ctx)
		p.elements = nil
	}
}

// Close releases every snapshot held. It is safe to call more than once.
func (p *PublishedSnapshot) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.elements != nil {
		p.elements.Close(ctx)
		p.elements = nil
	}
	p.closed = true
}
