package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jacentio/bloggy/blog"
	"github.com/jacentio/bloggy/internal/cursor"
	"github.com/jacentio/bloggy/internal/render"
)

// errUnknownTag is returned when a post refers to a tag that does not exist.
var errUnknownTag = errors.New("unknown tag")

// postFields are the editable fields of a post.
type postFields struct {
	Title     string     `json:"title" validate:"required,max=255,basictext"`
	Body      string     `json:"body" validate:"required,max=131072"`
	Published bool       `json:"published"`
	Tags      []string   `json:"tags" validate:"max=98,dive,urlsafe"`
	MainImage blog.Image `json:"main_image"`
	Created   *time.Time `json:"created"`
}

type newPostRequest struct {
	Slug string `json:"slug" validate:"required,max=255,urlsafe"`
	postFields
}

type editPostRequest struct {
	postFields
	Version int64 `json:"version" validate:"required,min=1"`
}

type listResponse[T any] struct {
	Items []T          `json:"items"`
	Links cursor.Links `json:"links"`
}

// postSummary is a published post as it appears in a listing.
type postSummary struct {
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	Tags      []blog.Tag `json:"tags"`
	MainImage blog.Image `json:"main_image"`
	Created   time.Time  `json:"created"`
	Excerpt   string     `json:"excerpt"`
}

// postView is a published post with its body rendered.
type postView struct {
	blog.Post
	HTML string `json:"html"`
}

// pager restores the listing position from the page and pt query parameters.
func pager(r *http.Request) *cursor.Pager {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	return cursor.Resolve(q.Get("pt"), page)
}

func (s *Server) listPublishedPosts(w http.ResponseWriter, r *http.Request) {
	p := pager(r)
	page, err := s.repo.ListPublishedPosts(r.Context(), r.URL.Query().Get("tag"), s.pageSize, p.Start)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]postSummary, 0, len(page.Items))
	for _, post := range page.Items {
		html, err := s.renderer.Markdown(post.Body)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("render %s: %w", post.Slug, err))
			return
		}
		items = append(items, postSummary{
			Slug:      post.Slug,
			Title:     post.Title,
			Tags:      post.Tags,
			MainImage: post.MainImage,
			Created:   post.Created,
			Excerpt:   render.FirstParagraph(html),
		})
	}
	writeJSON(w, http.StatusOK, listResponse[postSummary]{Items: items, Links: p.Advance(page.Next)})
}

func (s *Server) showPublishedPost(w http.ResponseWriter, r *http.Request) {
	slug, err := s.urlID(r, "slug")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.repo.GetPublishedPost(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	html, err := s.renderer.Markdown(post.Body)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("render %s: %w", post.Slug, err))
		return
	}
	writeJSON(w, http.StatusOK, postView{Post: post, HTML: html})
}

func (s *Server) listAllPosts(w http.ResponseWriter, r *http.Request) {
	p := pager(r)
	page, err := s.repo.ListAllPosts(r.Context(), s.pageSize, p.Start)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[blog.Post]{Items: page.Items, Links: p.Advance(page.Next)})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	slug, err := s.urlID(r, "slug")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.repo.GetPost(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req newPostRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	post := blog.Post{Slug: req.Slug}
	if err := s.apply(r, &post, req.postFields); err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.repo.SavePost(r.Context(), post)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/posts/"+post.Slug)
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	var req editPostRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	slug, err := s.urlID(r, "slug")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.repo.GetPost(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.apply(r, &post, req.postFields); err != nil {
		s.writeError(w, r, err)
		return
	}
	post.Version = req.Version

	post, err = s.repo.UpdatePost(r.Context(), post)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	slug, err := s.urlID(r, "slug")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.repo.DeletePost(r.Context(), slug); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apply copies the request fields onto post, resolving tag names to the stored tags.
// Created is left alone when the request omits it.
func (s *Server) apply(r *http.Request, post *blog.Post, f postFields) error {
	tags := make([]blog.Tag, 0, len(f.Tags))
	for _, name := range f.Tags {
		tag, err := s.repo.GetTag(r.Context(), name)
		if errors.Is(err, blog.ErrNotFound) {
			return fmt.Errorf("%w: %s", errUnknownTag, name)
		}
		if err != nil {
			return err
		}
		tags = append(tags, tag)
	}

	post.Title = f.Title
	post.Body = f.Body
	post.Published = f.Published
	post.Tags = tags
	post.MainImage = f.MainImage
	if f.Created != nil {
		post.Created = *f.Created
	}
	return nil
}
