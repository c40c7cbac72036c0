package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pos(slug string) *Position {
	return &Position{Created: "2023-01-01T00:00:00.000000Z", Slug: slug}
}

func TestResolve_FirstPage(t *testing.T) {
	p := Resolve("", 1)
	assert.Equal(t, 1, p.Page)
	assert.Nil(t, p.Start)
}

func TestResolve_UnknownPageResetsToFirst(t *testing.T) {
	token := Encode(map[string]Position{"2": *pos("p10")})

	p := Resolve(token, 3)
	assert.Equal(t, 1, p.Page)
	assert.Nil(t, p.Start)
}

func TestResolve_GarbledTokenResetsToFirst(t *testing.T) {
	for _, token := range []string{"garbage", "e30", Encode([]string{"x"})} {
		p := Resolve(token, 2)
		assert.Equal(t, 1, p.Page, "token %q", token)
		assert.Nil(t, p.Start)
	}
}

func TestResolve_InvalidEntriesDropped(t *testing.T) {
	token := Encode(map[string]Position{
		"2":   *pos("p10"),
		"x":   *pos("p20"),
		"1":   *pos("p0"),
		"3":   {Created: "missing-identity"},
		"-4":  *pos("p30"),
		"003": *pos("p40"),
	})

	p := Resolve(token, 2)
	require.NotNil(t, p.Start)
	assert.Equal(t, "p10", p.Start.Slug)

	links := p.Advance(nil)
	var pages map[string]Position
	require.True(t, Decode(links.Token, &pages))
	assert.Contains(t, pages, "2")
	assert.NotContains(t, pages, "x")
	assert.NotContains(t, pages, "1")
	assert.NotContains(t, pages, "3")
	assert.NotContains(t, pages, "-4")
}

func TestPager_WalkForwardAndBack(t *testing.T) {
	// page 1
	p := Resolve("", 1)
	links := p.Advance(pos("p10"))
	assert.Equal(t, Links{Page: 1, Prev: 0, Next: 2, Token: links.Token}, links)
	require.NotEmpty(t, links.Token)

	// page 2
	p = Resolve(links.Token, links.Next)
	require.Equal(t, 2, p.Page)
	assert.Equal(t, "p10", p.Start.Slug)
	links = p.Advance(pos("p20"))
	assert.Equal(t, 2, links.Page)
	assert.Equal(t, 1, links.Prev)
	assert.Equal(t, 3, links.Next)

	// page 3 is the last page
	p = Resolve(links.Token, 3)
	require.Equal(t, 3, p.Page)
	assert.Equal(t, "p20", p.Start.Slug)
	last := p.Advance(nil)
	assert.Equal(t, 0, last.Next)
	assert.Equal(t, 2, last.Prev)

	// back to page 2 with the same token
	p = Resolve(last.Token, 2)
	require.Equal(t, 2, p.Page)
	assert.Equal(t, "p10", p.Start.Slug)
}

func TestPager_SinglePageHasNoToken(t *testing.T) {
	links := Resolve("", 1).Advance(nil)
	assert.Equal(t, Links{Page: 1}, links)
}
