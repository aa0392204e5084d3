package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"legacycore/internal/core"
	"legacycore/internal/shamir"
	"legacycore/pkg/domain"
)

type escrowRequestBody struct {
	OwnerID   string   `json:"owner_id"`
	Secret    []byte   `json:"secret"`
	Threshold int      `json:"threshold"`
	HolderIDs []string `json:"holder_ids"`
}

// issuedShare is the one-time plaintext share handed back at setup. Bytes are
// base64 in JSON; the server keeps only the fingerprint.
type issuedShare struct {
	Index     int    `json:"index"`
	ContactID string `json:"contact_id"`
	Bytes     []byte `json:"bytes"`
}

func (s *Server) setupEscrow(w http.ResponseWriter, r *http.Request) {
	var body escrowRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Secret) == 0 {
		writeError(w, r, http.StatusBadRequest, "bad_request", "secret is required", nil)
		return
	}
	escrow, shares, _, err := s.svc.SetupEscrow(r.Context(), body.OwnerID, body.Secret, body.Threshold, body.HolderIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	issued := make([]issuedShare, 0, len(shares))
	for i, share := range shares {
		issued = append(issued, issuedShare{
			Index:     share.Index,
			ContactID: body.HolderIDs[i],
			Bytes:     share.Bytes,
		})
	}
	writeData(w, r, http.StatusCreated, map[string]any{
		"escrow": escrow,
		"shares": issued,
	})
}

func (s *Server) listEscrows(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.svc.Store().ListEscrows(r.URL.Query().Get("owner_id")))
}

type openRecoveryBody struct {
	ActivationID string `json:"activation_id"`
}

func (s *Server) openRecovery(w http.ResponseWriter, r *http.Request) {
	var body openRecoveryBody
	if !decodeBody(w, r, &body) {
		return
	}
	ceremony, _, err := s.svc.OpenRecovery(r.Context(), chi.URLParam(r, "escrowID"), body.ActivationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, ceremony)
}

func (s *Server) getRecovery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ceremonyID")
	ceremony, ok := s.svc.Store().GetCeremony(id)
	if !ok {
		writeServiceError(w, r, core.ErrNotFound{Entity: domain.EntityCeremony, ID: id})
		return
	}
	writeData(w, r, http.StatusOK, ceremony)
}

type depositShareBody struct {
	ContactID string `json:"contact_id"`
	Index     int    `json:"index"`
	Bytes     []byte `json:"bytes"`
}

func (s *Server) depositShare(w http.ResponseWriter, r *http.Request) {
	var body depositShareBody
	if !decodeBody(w, r, &body) {
		return
	}
	ceremony, _, err := s.svc.DepositShare(r.Context(), chi.URLParam(r, "ceremonyID"), body.ContactID, shamir.Share{
		Index: body.Index,
		Bytes: body.Bytes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, ceremony)
}

func (s *Server) completeRecovery(w http.ResponseWriter, r *http.Request) {
	secret, ceremony, _, err := s.svc.CompleteRecovery(r.Context(), chi.URLParam(r, "ceremonyID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]any{
		"secret":   secret,
		"ceremony": ceremony,
	})
}

func (s *Server) abortRecovery(w http.ResponseWriter, r *http.Request) {
	var body closeRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	ceremony, _, err := s.svc.AbortRecovery(r.Context(), chi.URLParam(r, "ceremonyID"), body.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, ceremony)
}
