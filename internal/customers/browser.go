package customers

import (
	"context"
	"strings"
	"sync"
)

// Searcher is implemented by Store.
type Searcher interface {
	Search(ctx context.Context, q Query) (Page, error)
}

// Browser accumulates search pages for one picker, the way an infinitely
// scrolling list does. Changing the keyword starts over.
type Browser struct {
	searcher Searcher
	pageSize int

	mu      sync.Mutex
	keyword string
	cursor  string
	items   []Customer
	seen    map[string]struct{}
	started bool
	done    bool
}

func NewBrowser(s Searcher, pageSize int) *Browser {
	return &Browser{searcher: s, pageSize: pageSize, seen: map[string]struct{}{}}
}

// SetKeyword resets the accumulated items when keyword differs from the
// current one.
func (b *Browser) SetKeyword(keyword string) {
	keyword = strings.TrimSpace(keyword)
	b.mu.Lock()
	defer b.mu.Unlock()
	if keyword == b.keyword && b.started {
		return
	}
	b.keyword = keyword
	b.cursor = ""
	b.items = nil
	b.seen = map[string]struct{}{}
	b.started = false
	b.done = false
}

// Next fetches the following page and returns the customers it added.
func (b *Browser) Next(ctx context.Context) ([]Customer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil, nil
	}
	page, err := b.searcher.Search(ctx, Query{Keyword: b.keyword, PageSize: b.pageSize, Cursor: b.cursor})
	if err != nil {
		return nil, err
	}
	b.started = true

	added := make([]Customer, 0, len(page.Items))
	for _, c := range page.Items {
		if _, dup := b.seen[c.ID]; dup {
			continue
		}
		b.seen[c.ID] = struct{}{}
		b.items = append(b.items, c)
		added = append(added, c)
	}
	b.cursor = page.Cursor
	b.done = page.Cursor == ""
	return added, nil
}

// Items returns everything accumulated so far.
func (b *Browser) Items() []Customer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Customer, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Browser) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}
