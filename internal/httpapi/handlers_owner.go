package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"legacycore/internal/core"
	"legacycore/pkg/domain"
)

type ownerRequest struct {
	Email         string   `json:"email"`
	DisplayName   string   `json:"display_name"`
	CheckInDays   *int     `json:"check_in_days,omitempty"`
	GraceDays     *int     `json:"grace_days,omitempty"`
	SignalSources []string `json:"signal_sources,omitempty"`
	// SignalToken is received in plaintext and persisted only as a hash.
	SignalToken *string `json:"signal_token,omitempty"`
}

func (s *Server) createOwner(w http.ResponseWriter, r *http.Request) {
	var body ownerRequest
	if !decodeBody(w, r, &body) {
		return
	}
	owner := domain.OwnerAccount{
		Email:         body.Email,
		DisplayName:   body.DisplayName,
		SignalSources: body.SignalSources,
	}
	if body.CheckInDays != nil {
		owner.CheckInDays = *body.CheckInDays
	}
	if body.GraceDays != nil {
		owner.GraceDays = *body.GraceDays
	}
	if body.SignalToken != nil {
		owner.SignalTokenHash = core.HashSignalToken(*body.SignalToken)
	}
	created, _, err := s.svc.CreateOwner(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, created)
}

func (s *Server) listOwners(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.svc.Store().ListOwners())
}

func (s *Server) getOwner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ownerID")
	owner, ok := s.svc.Store().GetOwner(id)
	if !ok {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityOwner, ID: id})
		return
	}
	writeData(w, r, http.StatusOK, owner)
}

func (s *Server) updateOwner(w http.ResponseWriter, r *http.Request) {
	var body ownerRequest
	if !decodeBody(w, r, &body) {
		return
	}
	updated, _, err := s.svc.UpdateOwner(r.Context(), chi.URLParam(r, "ownerID"), func(o *domain.OwnerAccount) error {
		if body.Email != "" {
			o.Email = body.Email
		}
		if body.DisplayName != "" {
			o.DisplayName = body.DisplayName
		}
		if body.CheckInDays != nil {
			o.CheckInDays = *body.CheckInDays
		}
		if body.GraceDays != nil {
			o.GraceDays = *body.GraceDays
		}
		if body.SignalSources != nil {
			o.SignalSources = body.SignalSources
		}
		if body.SignalToken != nil {
			o.SignalTokenHash = core.HashSignalToken(*body.SignalToken)
		}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, updated)
}

func (s *Server) deleteOwner(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteOwner(r.Context(), chi.URLParam(r, "ownerID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) checkIn(w http.ResponseWriter, r *http.Request) {
	owner, _, err := s.svc.CheckIn(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, owner)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.svc.Store().ListAudit(chi.URLParam(r, "ownerID")))
}

type contactRequest struct {
	Name     string               `json:"name"`
	Email    string               `json:"email"`
	Roles    []domain.ContactRole `json:"roles,omitempty"`
	Verified *bool                `json:"verified,omitempty"`
}

func (s *Server) createContact(w http.ResponseWriter, r *http.Request) {
	var body contactRequest
	if !decodeBody(w, r, &body) {
		return
	}
	contact := domain.Contact{
		OwnerID: chi.URLParam(r, "ownerID"),
		Name:    body.Name,
		Email:   body.Email,
		Roles:   body.Roles,
	}
	if body.Verified != nil {
		contact.Verified = *body.Verified
	}
	created, _, err := s.svc.CreateContact(r.Context(), contact)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, created)
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.svc.Store().ListContacts(chi.URLParam(r, "ownerID")))
}

func (s *Server) updateContact(w http.ResponseWriter, r *http.Request) {
	var body contactRequest
	if !decodeBody(w, r, &body) {
		return
	}
	updated, _, err := s.svc.UpdateContact(r.Context(), chi.URLParam(r, "contactID"), func(c *domain.Contact) error {
		if body.Name != "" {
			c.Name = body.Name
		}
		if body.Email != "" {
			c.Email = body.Email
		}
		if body.Roles != nil {
			c.Roles = body.Roles
		}
		if body.Verified != nil {
			c.Verified = *body.Verified
		}
		return nil
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, updated)
}

func (s *Server) deleteContact(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteContact(r.Context(), chi.URLParam(r, "contactID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

type signalRequest struct {
	OwnerID string `json:"owner_id"`
	Source  string `json:"source"`
	Token   string `json:"token"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) recordSignal(w http.ResponseWriter, r *http.Request) {
	var body signalRequest
	if !decodeBody(w, r, &body) {
		return
	}
	spawned, _, err := s.svc.RecordSignal(r.Context(), body.OwnerID, body.Source, body.Token, body.Detail)
	if errors.Is(err, core.ErrSignalRejected) {
		writeError(w, r, http.StatusForbidden, "signal_rejected", err.Error(), nil)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusAccepted, map[string]any{"activations": spawned})
}
