package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"legacycore/internal/core"
	"legacycore/pkg/domain"
)

type activationRequestBody struct {
	OwnerID   string                  `json:"owner_id"`
	ContactID string                  `json:"contact_id"`
	Source    domain.ActivationSource `json:"source,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
}

func (s *Server) requestActivation(w http.ResponseWriter, r *http.Request) {
	var body activationRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, _, err := s.svc.RequestActivation(r.Context(), domain.ActivationRequest{
		OwnerID:   body.OwnerID,
		ContactID: body.ContactID,
		Source:    body.Source,
		Reason:    body.Reason,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, req)
}

type panicRequestBody struct {
	ContactID string `json:"contact_id"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) panicActivate(w http.ResponseWriter, r *http.Request) {
	var body panicRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, _, err := s.svc.PanicActivate(r.Context(), chi.URLParam(r, "ownerID"), body.ContactID, body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, req)
}

func (s *Server) listActivations(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.svc.Store().ListActivations(r.URL.Query().Get("owner_id")))
}

func (s *Server) getActivation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "activationID")
	req, ok := s.svc.Store().GetActivation(id)
	if !ok {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityActivation, ID: id})
		return
	}
	writeData(w, r, http.StatusOK, req)
}

func (s *Server) verifyActivation(w http.ResponseWriter, r *http.Request) {
	req, _, err := s.svc.VerifyActivation(r.Context(), chi.URLParam(r, "activationID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, req)
}

func (s *Server) approveActivation(w http.ResponseWriter, r *http.Request) {
	req, _, err := s.svc.ApproveActivation(r.Context(), chi.URLParam(r, "activationID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, req)
}

type closeRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) denyActivation(w http.ResponseWriter, r *http.Request) {
	var body closeRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, _, err := s.svc.DenyActivation(r.Context(), chi.URLParam(r, "activationID"), body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, req)
}

func (s *Server) revokeActivation(w http.ResponseWriter, r *http.Request) {
	var body closeRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, _, err := s.svc.RevokeActivation(r.Context(), chi.URLParam(r, "activationID"), body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, req)
}

func (s *Server) exportBundle(w http.ResponseWriter, r *http.Request) {
	info, err := s.exporter.ExportGrant(r.Context(), chi.URLParam(r, "activationID"))
	var nf core.ErrNotFound
	if errors.As(err, &nf) {
		writeServiceError(w, r, err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusConflict, "export_refused", err.Error(), nil)
		return
	}
	writeData(w, r, http.StatusCreated, info)
}

type petitionRequestBody struct {
	OwnerID      string `json:"owner_id"`
	PetitionerID string `json:"petitioner_id"`
	Reason       string `json:"reason"`
	Quorum       *int   `json:"quorum,omitempty"`
}

func (s *Server) submitPetition(w http.ResponseWriter, r *http.Request) {
	var body petitionRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	petition := domain.BeneficiaryPetition{
		OwnerID:      body.OwnerID,
		PetitionerID: body.PetitionerID,
		Reason:       body.Reason,
	}
	if body.Quorum != nil {
		petition.Quorum = *body.Quorum
	}
	created, _, err := s.svc.SubmitPetition(r.Context(), petition)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, created)
}

func (s *Server) listPetitions(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.svc.Store().ListPetitions(r.URL.Query().Get("owner_id")))
}

func (s *Server) getPetition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "petitionID")
	petition, ok := s.svc.Store().GetPetition(id)
	if !ok {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityPetition, ID: id})
		return
	}
	writeData(w, r, http.StatusOK, petition)
}

type voteRequestBody struct {
	ContactID string `json:"contact_id"`
	Approve   bool   `json:"approve"`
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	var body voteRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	petition, _, err := s.svc.CastPetitionVote(r.Context(), chi.URLParam(r, "petitionID"), body.ContactID, body.Approve)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, petition)
}
