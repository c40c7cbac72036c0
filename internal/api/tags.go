package api

import (
	"net/http"

	"github.com/jacentio/bloggy/blog"
)

type newTagRequest struct {
	Name  string `json:"name" validate:"required,max=255,urlsafe"`
	Label string `json:"label" validate:"required,max=255,basictext"`
}

type editTagRequest struct {
	Label   string `json:"label" validate:"required,max=255,basictext"`
	Version int64  `json:"version" validate:"required,min=1"`
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	p := pager(r)
	page, err := s.repo.ListTags(r.Context(), s.pageSize, p.Start)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[blog.Tag]{Items: page.Items, Links: p.Advance(page.Next)})
}

func (s *Server) getTag(w http.ResponseWriter, r *http.Request) {
	name, err := s.urlID(r, "name")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tag, err := s.repo.GetTag(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	var req newTagRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tag, err := s.repo.SaveTag(r.Context(), blog.Tag{Name: req.Name, Label: req.Label})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/admin/tags/"+tag.Name)
	writeJSON(w, http.StatusCreated, tag)
}

func (s *Server) updateTag(w http.ResponseWriter, r *http.Request) {
	var req editTagRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := s.urlID(r, "name")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tag, err := s.repo.UpdateTag(r.Context(), blog.Tag{
		Name:    name,
		Label:   req.Label,
		Version: req.Version,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	name, err := s.urlID(r, "name")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.repo.DeleteTag(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
