package cursor

import "strconv"

// Pager tracks the start position of every page visited so far.
//
// The map travels with the client as a single token, which makes "previous page" links work
// without re-querying earlier pages.
type Pager struct {
	// Page is the page being served, starting at 1.
	Page int

	// Start is where the page begins; nil for page 1.
	Start *Position

	pages map[string]Position
}

// Resolve restores the pager from token and selects page.
// If no position is known for page, the pager falls back to page 1.
func Resolve(token string, page int) *Pager {
	p := &Pager{Page: 1, pages: map[string]Position{}}

	var pages map[string]Position
	if Decode(token, &pages) {
		for k, pos := range pages {
			if n, err := strconv.Atoi(k); err == nil && n > 1 && pos.Valid() {
				p.pages[k] = pos
			}
		}
	}

	if page > 1 {
		if pos, ok := p.pages[strconv.Itoa(page)]; ok {
			p.Page = page
			p.Start = &pos
		}
	}
	return p
}

// Links is what a listing needs to render page navigation.
type Links struct {
	Page  int    `json:"page"`
	Prev  int    `json:"prev,omitempty"`
	Next  int    `json:"next,omitempty"`
	Token string `json:"pt,omitempty"`
}

// Advance records next as the start of the following page and returns the navigation links.
// A nil next means the current page is the last one.
func (p *Pager) Advance(next *Position) Links {
	links := Links{Page: p.Page, Prev: p.Page - 1}
	if next != nil && next.Valid() {
		p.pages[strconv.Itoa(p.Page+1)] = *next
		links.Next = p.Page + 1
	}
	if len(p.pages) > 0 {
		links.Token = Encode(p.pages)
	}
	return links
}
