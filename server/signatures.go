package server

import (
	"net/http"

	"github.com/c360studio/traceline/metrics"
	"github.com/c360studio/traceline/signature"
	"github.com/c360studio/traceline/workitem"
)

// SignatureAPI serves digital signature routes: sign a work item's
// current snapshot, verify, invalidate, and list.
type SignatureAPI struct {
	signatures *signature.Service
	items      *workitem.Store
}

// NewSignatureAPI builds the handler group over the signature service
// and the work item store it snapshots from.
func NewSignatureAPI(signatures *signature.Service, items *workitem.Store) *SignatureAPI {
	return &SignatureAPI{signatures: signatures, items: items}
}

// RegisterHTTPHandlers registers the signature routes under the given
// prefix (typically "/v1").
func (a *SignatureAPI) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc("POST "+prefix+"/signatures", a.handleSign)
	mux.HandleFunc("POST "+prefix+"/signatures/{id}/verify", a.handleVerify)
	mux.HandleFunc("GET "+prefix+"/workitems/{id}/signatures", a.handleList)
	mux.HandleFunc("POST "+prefix+"/workitems/{id}/signatures/invalidate", a.handleInvalidate)
	mux.HandleFunc("GET "+prefix+"/workitems/{id}/signed", a.handleIsSigned)
}

type signRequest struct {
	WorkItemID    string `json:"workitem_id" validate:"required,uuid4"`
	PrivateKeyPEM string `json:"private_key_pem" validate:"required"`
}

func (a *SignatureAPI) handleSign(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req signRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := a.items.Get(r.Context(), req.WorkItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	sig, err := a.signatures.Sign(r.Context(), item.ID, item.Version, item, user, []byte(req.PrivateKeyPEM))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.SignaturesCreated.Inc()
	writeJSON(w, http.StatusCreated, sig)
}

type verifyRequest struct {
	WorkItemID   string `json:"workitem_id" validate:"required,uuid4"`
	PublicKeyPEM string `json:"public_key_pem" validate:"required"`
}

func (a *SignatureAPI) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := a.items.Get(r.Context(), req.WorkItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	verification, err := a.signatures.Verify(r.Context(), r.PathValue("id"), item, []byte(req.PublicKeyPEM))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

func (a *SignatureAPI) handleList(w http.ResponseWriter, r *http.Request) {
	includeInvalid := r.URL.Query().Get("include_invalid") == "true"
	sigs, err := a.signatures.SignaturesFor(r.Context(), r.PathValue("id"), includeInvalid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sigs)
}

type invalidateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (a *SignatureAPI) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	var req invalidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	invalidated, err := a.signatures.Invalidate(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.SignaturesInvalidated.Add(float64(len(invalidated)))
	writeJSON(w, http.StatusOK, invalidated)
}

func (a *SignatureAPI) handleIsSigned(w http.ResponseWriter, r *http.Request) {
	signed, err := a.signatures.IsSigned(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"signed": signed})
}
