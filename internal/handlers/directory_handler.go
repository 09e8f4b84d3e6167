package handlers

import (
	"errors"
	"html/template"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"memberdir/internal/models"
	"memberdir/internal/service"
	"memberdir/internal/uploads"
)

// DirectoryHandler serves the public member directory and stored images
type DirectoryHandler struct {
	memberService *service.MemberService
	images        *uploads.Storage
	sessions      *SessionStore
	templates     *template.Template
}

// NewDirectoryHandler creates a new directory handler
func NewDirectoryHandler(memberService *service.MemberService, images *uploads.Storage, sessions *SessionStore, templates *template.Template) *DirectoryHandler {
	return &DirectoryHandler{
		memberService: memberService,
		images:        images,
		sessions:      sessions,
		templates:     templates,
	}
}

// Directory lists the active and approved members
func (h *DirectoryHandler) Directory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	// A failed read shows an empty directory rather than an error page
	members, err := h.memberService.ListPublic()
	if err != nil {
		log.Printf("Error listing members: %v", err)
	}

	data := DirectoryViewData{
		Title:   "Member Directory",
		Members: members,
		Flashes: h.sessions.Flashes(w, r),
	}
	if err := h.templates.ExecuteTemplate(w, "directory.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error rendering directory template", err)
	}
}

// Profile shows one public member with family and business details
func (h *DirectoryHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		respondMemberNotFound(w)
		return
	}

	member, err := h.memberService.Get(id)
	if err != nil {
		respondWithMemberError(w, "Failed to load member", "Error fetching member", err)
		return
	}
	if !member.IsPublic() {
		respondMemberNotFound(w)
		return
	}

	now := time.Now()
	family := models.SortFamily(member.Family)
	views := make([]FamilyMemberView, 0, len(family))
	for _, f := range family {
		age := -1
		if f.Relation == models.RelationChild {
			age = models.Age(f.DateOfBirth, now)
		}
		views = append(views, FamilyMemberView{FamilyMember: f, Age: age})
	}

	data := ProfileViewData{
		Title:    member.Name,
		Member:   member,
		Age:      models.Age(member.DateOfBirth, now),
		Family:   views,
		Business: member.Business,
	}
	if err := h.templates.ExecuteTemplate(w, "profile.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error rendering profile template", err)
	}
}

// ServeUpload streams a stored image from the upload backend
func (h *DirectoryHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	key := path.Join(r.PathValue("kind"), r.PathValue("name"))

	rc, err := h.images.Open(r.Context(), key)
	if errors.Is(err, uploads.ErrInvalidKey) || errors.Is(err, uploads.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load image", "Error opening upload "+key, err)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("Error streaming upload %s: %v", key, err)
	}
}
