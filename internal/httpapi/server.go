// Package httpapi exposes the vault service over HTTP. All routes live under
// /api, respond with a uniform JSON envelope, and carry UUID request IDs.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"legacycore/internal/blob"
	"legacycore/internal/core"
	"legacycore/internal/export"
)

// Server wires the core service, blob store, and exporter behind a chi router.
type Server struct {
	svc      *core.Service
	blobs    blob.Store
	exporter *export.Exporter
	log      *zap.SugaredLogger
	gatherer prometheus.Gatherer
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger attaches a structured logger used by the request middleware.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics exposes the given gatherer at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// New constructs a Server. The exporter is built over the same store and blob
// backend so release bundles land next to document ciphertext.
func New(svc *core.Service, blobs blob.Store, opts ...Option) *Server {
	s := &Server{
		svc:   svc,
		blobs: blobs,
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.exporter = export.New(svc.Store(), blobs, export.WithLogger(s.log))
	return s
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		api.Route("/owners", func(owners chi.Router) {
			owners.Post("/", s.createOwner)
			owners.Get("/", s.listOwners)
			owners.Route("/{ownerID}", func(o chi.Router) {
				o.Get("/", s.getOwner)
				o.Patch("/", s.updateOwner)
				o.Delete("/", s.deleteOwner)
				o.Post("/checkin", s.checkIn)
				o.Post("/panic", s.panicActivate)
				o.Get("/audit", s.listAudit)
				o.Post("/contacts", s.createContact)
				o.Get("/contacts", s.listContacts)
				o.Post("/vault", s.createVaultItem)
				o.Get("/vault", s.listVaultItems)
				o.Post("/triggers", s.createTrigger)
				o.Get("/triggers", s.listTriggers)
			})
		})

		api.Route("/contacts/{contactID}", func(c chi.Router) {
			c.Patch("/", s.updateContact)
			c.Delete("/", s.deleteContact)
		})

		api.Route("/vault/{itemID}", func(v chi.Router) {
			v.Get("/", s.getVaultItem)
			v.Patch("/", s.updateVaultItem)
			v.Delete("/", s.deleteVaultItem)
			v.Put("/content", s.uploadContent)
			v.Get("/content", s.downloadContent)
		})

		api.Route("/triggers/{triggerID}", func(t chi.Router) {
			t.Patch("/", s.updateTrigger)
			t.Delete("/", s.deleteTrigger)
			t.Post("/pause", s.pauseTrigger)
			t.Post("/arm", s.armTrigger)
		})

		api.Route("/activations", func(a chi.Router) {
			a.Post("/", s.requestActivation)
			a.Get("/", s.listActivations)
			a.Route("/{activationID}", func(one chi.Router) {
				one.Get("/", s.getActivation)
				one.Post("/verify", s.verifyActivation)
				one.Post("/approve", s.approveActivation)
				one.Post("/deny", s.denyActivation)
				one.Post("/revoke", s.revokeActivation)
				one.Post("/bundle", s.exportBundle)
			})
		})

		api.Route("/petitions", func(p chi.Router) {
			p.Post("/", s.submitPetition)
			p.Get("/", s.listPetitions)
			p.Get("/{petitionID}", s.getPetition)
			p.Post("/{petitionID}/votes", s.castVote)
		})

		api.Route("/escrows", func(e chi.Router) {
			e.Post("/", s.setupEscrow)
			e.Get("/", s.listEscrows)
			e.Post("/{escrowID}/recoveries", s.openRecovery)
		})

		api.Route("/recoveries/{ceremonyID}", func(rc chi.Router) {
			rc.Get("/", s.getRecovery)
			rc.Post("/shares", s.depositShare)
			rc.Post("/complete", s.completeRecovery)
			rc.Post("/abort", s.abortRecovery)
		})

		api.Post("/signals", s.recordSignal)
	})
	return r
}
