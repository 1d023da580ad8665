// Package fetch implements the fetch_pointer tool's backend: resolving
// a Tool Context Store pointer id back to the full text a prior tool
// call produced, for the case where the scratchpad only carries an
// inlined placeholder.
package fetch

import "context"

// TextLookup is the subset of the Tool Context Store this package
// needs: resolve a pointer id to its stored text.
type TextLookup interface {
	GetText(pointerID string) (string, error)
}

// Fetcher retrieves full tool-result text by pointer id.
type Fetcher struct {
	store TextLookup
}

// NewFetcher builds a Fetcher over store.
func NewFetcher(store TextLookup) *Fetcher {
	return &Fetcher{store: store}
}

// Fetch resolves pointerID to its stored text, truncated to maxChars
// if positive.
func (f *Fetcher) Fetch(ctx context.Context, pointerID string, maxChars int) (string, error) {
	text, err := f.store.GetText(pointerID)
	if err != nil {
		return "", err
	}
	if maxChars > 0 && len(text) > maxChars {
		return text[:maxChars], nil
	}
	return text, nil
}
