package httpapi

import (
	"errors"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"legacycore/internal/blob"
	"legacycore/internal/core"
	"legacycore/pkg/domain"
)

type vaultItemRequest struct {
	Kind     domain.VaultItemKind   `json:"kind"`
	Title    string                 `json:"title"`
	Tags     []string               `json:"tags,omitempty"`
	Release  domain.ReleasePolicy   `json:"release,omitempty"`
	Envelope *domain.SealedEnvelope `json:"envelope,omitempty"`
}

func (s *Server) createVaultItem(w http.ResponseWriter, r *http.Request) {
	var body vaultItemRequest
	if !decodeBody(w, r, &body) {
		return
	}
	item := domain.VaultItem{
		OwnerID: chi.URLParam(r, "ownerID"),
		Kind:    body.Kind,
		Title:   body.Title,
		Tags:    body.Tags,
		Release: body.Release,
	}
	if body.Envelope != nil {
		item.Envelope = *body.Envelope
	}
	created, _, err := s.svc.CreateVaultItem(r.Context(), item)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, created)
}

func (s *Server) listVaultItems(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.svc.Store().ListVaultItems(chi.URLParam(r, "ownerID")))
}

func (s *Server) getVaultItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemID")
	item, ok := s.svc.Store().GetVaultItem(id)
	if !ok {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityVaultItem, ID: id})
		return
	}
	writeData(w, r, http.StatusOK, item)
}

func (s *Server) updateVaultItem(w http.ResponseWriter, r *http.Request) {
	var body vaultItemRequest
	if !decodeBody(w, r, &body) {
		return
	}
	updated, _, err := s.svc.UpdateVaultItem(r.Context(), chi.URLParam(r, "itemID"), func(item *domain.VaultItem) error {
		if body.Title != "" {
			item.Title = body.Title
		}
		if body.Tags != nil {
			item.Tags = body.Tags
		}
		if body.Release != "" {
			item.Release = body.Release
		}
		if body.Envelope != nil {
			item.Envelope = *body.Envelope
		}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, updated)
}

func (s *Server) deleteVaultItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemID")
	item, ok := s.svc.Store().GetVaultItem(id)
	if !ok {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityVaultItem, ID: id})
		return
	}
	if _, err := s.svc.DeleteVaultItem(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if item.BlobKey != "" {
		if _, err := s.blobs.Delete(r.Context(), item.BlobKey); err != nil {
			s.log.Warnw("orphaned document blob", "key", item.BlobKey, "error", err)
		}
	}
	writeData(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// uploadContent stores document ciphertext in the blob store and records the
// resulting key and size on the item. The payload is opaque to the server.
func (s *Server) uploadContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemID")
	item, ok := s.svc.Store().GetVaultItem(id)
	if !ok {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityVaultItem, ID: id})
		return
	}
	if item.Kind != domain.ItemDocument {
		writeError(w, r, http.StatusBadRequest, "bad_request", "only document items carry blob content", nil)
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := path.Join("vault", item.OwnerID, item.ID)
	// Blob keys are immutable, so replacing content means delete then put.
	if item.BlobKey != "" {
		if _, err := s.blobs.Delete(r.Context(), item.BlobKey); err != nil {
			writeError(w, r, http.StatusInternalServerError, "blob_error", err.Error(), nil)
			return
		}
	}
	info, err := s.blobs.Put(r.Context(), key, r.Body, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"owner_id": item.OwnerID, "item_id": item.ID},
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "blob_error", err.Error(), nil)
		return
	}
	updated, _, err := s.svc.UpdateVaultItem(r.Context(), id, func(item *domain.VaultItem) error {
		item.BlobKey = info.Key
		item.Size = info.Size
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, updated)
}

func (s *Server) downloadContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemID")
	item, ok := s.svc.Store().GetVaultItem(id)
	if !ok || item.BlobKey == "" {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityVaultItem, ID: id})
		return
	}
	info, rc, err := s.blobs.Get(r.Context(), item.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityVaultItem, ID: id})
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "blob_error", err.Error(), nil)
		return
	}
	defer rc.Close()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

type triggerRequest struct {
	Kind        domain.TriggerKind      `json:"kind"`
	Label       string                  `json:"label"`
	InactivityD *int                    `json:"inactivity_days,omitempty"`
	GraceDays   *int                    `json:"grace_days,omitempty"`
	Escalation  []domain.EscalationStep `json:"escalation,omitempty"`
	ScheduledAt *time.Time              `json:"scheduled_at,omitempty"`
}

func (s *Server) createTrigger(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	if !decodeBody(w, r, &body) {
		return
	}
	trig := domain.TriggerCondition{
		OwnerID:     chi.URLParam(r, "ownerID"),
		Kind:        body.Kind,
		Label:       body.Label,
		Escalation:  body.Escalation,
		ScheduledAt: body.ScheduledAt,
	}
	if body.InactivityD != nil {
		trig.InactivityD = *body.InactivityD
	}
	if body.GraceDays != nil {
		trig.GraceDays = *body.GraceDays
	}
	created, _, err := s.svc.CreateTrigger(r.Context(), trig)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, created)
}

func (s *Server) listTriggers(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.svc.Store().ListTriggers(chi.URLParam(r, "ownerID")))
}

func (s *Server) updateTrigger(w http.ResponseWriter, r *http.Request) {
	var body triggerRequest
	if !decodeBody(w, r, &body) {
		return
	}
	updated, _, err := s.svc.UpdateTrigger(r.Context(), chi.URLParam(r, "triggerID"), func(t *domain.TriggerCondition) error {
		if body.Label != "" {
			t.Label = body.Label
		}
		if body.InactivityD != nil {
			t.InactivityD = *body.InactivityD
		}
		if body.GraceDays != nil {
			t.GraceDays = *body.GraceDays
		}
		if body.Escalation != nil {
			t.Escalation = body.Escalation
		}
		if body.ScheduledAt != nil {
			t.ScheduledAt = body.ScheduledAt
		}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, updated)
}

func (s *Server) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteTrigger(r.Context(), chi.URLParam(r, "triggerID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) pauseTrigger(w http.ResponseWriter, r *http.Request) {
	trig, _, err := s.svc.PauseTrigger(r.Context(), chi.URLParam(r, "triggerID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, trig)
}

func (s *Server) armTrigger(w http.ResponseWriter, r *http.Request) {
	trig, _, err := s.svc.ArmTrigger(r.Context(), chi.URLParam(r, "triggerID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, trig)
}
