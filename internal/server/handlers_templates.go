package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/auth"
	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

// templateFromRequest builds a draft template from the request body.
func templateFromRequest(req model.CreateTemplateRequest, owner string) model.Template {
	return model.Template{
		ID:                    uuid.New(),
		Name:                  req.Name,
		Version:               1,
		ParentID:              req.ParentID,
		OwnerClerkID:          owner,
		Visibility:            req.Visibility,
		Lifecycle:             model.LifecycleDraft,
		Goal:                  req.Goal,
		Blueprint:             req.Blueprint,
		CompetencyIDs:         req.CompetencyIDs,
		QuestionsPerIndicator: req.QuestionsPerIndicator,
		TimeLimitMinutes:      req.TimeLimitMinutes,
		PassingScore:          req.PassingScore,
		ShuffleQuestions:      req.ShuffleQuestions,
		ShuffleOptions:        req.ShuffleOptions,
		AllowSkip:             req.AllowSkip,
		AllowBackNavigation:   req.AllowBackNavigation,
	}
}

// loadOwnedTemplate fetches a template and checks ownership.
func (h *Handlers) loadOwnedTemplate(w http.ResponseWriter, r *http.Request, id uuid.UUID, owner string) (model.Template, bool) {
	t, err := h.db.GetTemplate(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && t.DeletedAt != nil) {
		writeError(w, r, http.StatusNotFound, string(model.CodeNotFound), "template not found")
		return model.Template{}, false
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return model.Template{}, false
	}
	if t.OwnerClerkID != owner {
		writeError(w, r, http.StatusForbidden, string(model.CodePermissionDenied), "template belongs to another user")
		return model.Template{}, false
	}
	return t, true
}

// HandleCreateTemplate handles POST /templates.
func (h *Handlers) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req model.CreateTemplateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	t := templateFromRequest(req, owner)
	if err := model.ValidateTemplate(t); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.db.CreateTemplate(r.Context(), t); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, t)
}

// HandleListTemplates handles GET /templates.
func (h *Handlers) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	templates, err := h.db.ListTemplatesByOwner(r.Context(), owner)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, templates)
}

// HandleGetTemplate handles GET /templates/{template_id}. Owners see all
// their templates; everyone else only published public ones.
func (h *Handlers) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "template_id")
	if !ok {
		return
	}
	t, err := h.db.GetTemplate(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && t.DeletedAt != nil) {
		writeError(w, r, http.StatusNotFound, string(model.CodeNotFound), "template not found")
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	claims := ClaimsFromContext(r.Context())
	isOwner := claims != nil && claims.ClerkUserID == t.OwnerClerkID
	if !isOwner && (t.Lifecycle != model.LifecyclePublished || t.Visibility != model.VisibilityPublic) {
		writeError(w, r, http.StatusNotFound, string(model.CodeNotFound), "template not found")
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

// HandleUpdateTemplate handles PUT /templates/{template_id}. Only drafts
// are mutable; published templates take edits through a new version.
func (h *Handlers) HandleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "template_id")
	if !ok {
		return
	}
	existing, ok := h.loadOwnedTemplate(w, r, id, owner)
	if !ok {
		return
	}
	if existing.Lifecycle != model.LifecycleDraft {
		writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidState),
			"only draft templates can be edited, publish creates a new version")
		return
	}

	var req model.CreateTemplateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	updated := templateFromRequest(req, owner)
	updated.ID = existing.ID
	updated.Version = existing.Version
	updated.ParentID = existing.ParentID
	if err := model.ValidateTemplate(updated); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.db.UpdateDraftTemplate(r.Context(), updated); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidState), "template is no longer a draft")
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// HandleCreateTemplateVersion handles POST /templates/{template_id}/versions:
// a new draft derived from a published template.
func (h *Handlers) HandleCreateTemplateVersion(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "template_id")
	if !ok {
		return
	}
	parent, ok := h.loadOwnedTemplate(w, r, id, owner)
	if !ok {
		return
	}
	if parent.Lifecycle != model.LifecyclePublished {
		writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidState),
			"only published templates can be versioned")
		return
	}

	var req model.CreateTemplateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	next := templateFromRequest(req, owner)
	next.ParentID = &parent.ID
	next.Version = parent.Version + 1
	if err := model.ValidateTemplate(next); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.db.CreateTemplate(r.Context(), next); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, next)
}

// HandlePublishTemplate handles POST /templates/{template_id}/publish.
func (h *Handlers) HandlePublishTemplate(w http.ResponseWriter, r *http.Request) {
	h.transitionTemplate(w, r, model.LifecycleDraft, model.LifecyclePublished)
}

// HandleArchiveTemplate handles POST /templates/{template_id}/archive.
func (h *Handlers) HandleArchiveTemplate(w http.ResponseWriter, r *http.Request) {
	h.transitionTemplate(w, r, model.LifecyclePublished, model.LifecycleArchived)
}

func (h *Handlers) transitionTemplate(w http.ResponseWriter, r *http.Request, from, to model.Lifecycle) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "template_id")
	if !ok {
		return
	}
	t, ok := h.loadOwnedTemplate(w, r, id, owner)
	if !ok {
		return
	}
	if to == model.LifecyclePublished {
		if err := model.ValidateTemplate(t); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	if err := h.db.SetTemplateLifecycle(r.Context(), id, from, to); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidState),
				"template is not "+string(from))
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	t.Lifecycle = to
	writeJSON(w, r, http.StatusOK, t)
}

// HandleDeleteTemplate handles DELETE /templates/{template_id}. Soft
// delete: existing sessions keep working, new starts are refused.
func (h *Handlers) HandleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "template_id")
	if !ok {
		return
	}
	if _, ok := h.loadOwnedTemplate(w, r, id, owner); !ok {
		return
	}
	if err := h.db.SoftDeleteTemplate(r.Context(), id, timeNowUTC()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateShareLink handles POST /share-links.
func (h *Handlers) HandleCreateShareLink(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req model.CreateShareLinkRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	t, ok := h.loadOwnedTemplate(w, r, req.TemplateID, owner)
	if !ok {
		return
	}
	if t.Lifecycle != model.LifecyclePublished {
		writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidState),
			"only published templates can be shared")
		return
	}
	if t.Visibility == model.VisibilityPrivate {
		writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidState),
			"private templates cannot be shared")
		return
	}

	token, tokenHash, err := auth.NewToken()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	link := model.ShareLink{
		ID:         uuid.New(),
		TemplateID: t.ID,
		TokenHash:  tokenHash,
		CreatedBy:  owner,
		ExpiresAt:  req.ExpiresAt,
		MaxUses:    req.MaxUses,
	}
	if err := h.db.CreateShareLink(r.Context(), link); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.CreateShareLinkResponse{ShareLink: link, Token: token})
}

// HandleListShareLinks handles GET /templates/{template_id}/share-links.
func (h *Handlers) HandleListShareLinks(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "template_id")
	if !ok {
		return
	}
	if _, ok := h.loadOwnedTemplate(w, r, id, owner); !ok {
		return
	}
	links, err := h.db.ListShareLinks(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, links)
}

// HandleRevokeShareLink handles DELETE /share-links/{share_link_id}.
func (h *Handlers) HandleRevokeShareLink(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "share_link_id")
	if !ok {
		return
	}
	link, err := h.db.GetShareLink(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, string(model.CodeNotFound), "share link not found")
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, ok := h.loadOwnedTemplate(w, r, link.TemplateID, owner); !ok {
		return
	}
	if err := h.db.RevokeShareLink(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
