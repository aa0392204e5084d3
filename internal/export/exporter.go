// Package export assembles release bundles for active emergency-access
// grants. A bundle collects the metadata and sealed payloads of every
// releasable vault item together with the owner's audit trail, serialized as
// JSON and written to the blob store. The exporter never decrypts anything;
// envelopes and document blobs stay sealed in the bundle.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"legacycore/internal/blob"
	"legacycore/pkg/domain"
)

// BundleContentType is the MIME type of a serialized release bundle.
const BundleContentType = "application/json"

// ReleasedItem is one vault item included in a release bundle. Notes and
// passwords carry the sealed envelope inline; documents reference their
// encrypted blob by key.
type ReleasedItem struct {
	ID       string                `json:"id"`
	Kind     domain.VaultItemKind  `json:"kind"`
	Title    string                `json:"title"`
	Tags     []string              `json:"tags,omitempty"`
	Envelope domain.SealedEnvelope `json:"envelope,omitempty"`
	BlobKey  string                `json:"blob_key,omitempty"`
	Size     int64                 `json:"size,omitempty"`
}

// Bundle is the serialized form of one grant release.
type Bundle struct {
	GeneratedAt  time.Time               `json:"generated_at"`
	OwnerID      string                  `json:"owner_id"`
	OwnerName    string                  `json:"owner_name"`
	ActivationID string                  `json:"activation_id"`
	GranteeID    string                  `json:"grantee_id"`
	GranteeName  string                  `json:"grantee_name"`
	Source       domain.ActivationSource `json:"source"`
	GrantedAt    *time.Time              `json:"granted_at,omitempty"`
	ExpiresAt    *time.Time              `json:"expires_at,omitempty"`
	Items        []ReleasedItem          `json:"items"`
	Withheld     int                     `json:"withheld"`
	Audit        []domain.AuditEvent     `json:"audit"`
}

// Exporter builds and stores release bundles.
type Exporter struct {
	store domain.PersistentStore
	blobs blob.Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithLogger attaches a structured logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Exporter) {
		if log != nil {
			e.log = log
		}
	}
}

// WithClock overrides the exporter clock.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs an Exporter over the given store and blob backend.
func New(store domain.PersistentStore, blobs blob.Store, opts ...Option) *Exporter {
	e := &Exporter{
		store: store,
		blobs: blobs,
		log:   zap.NewNop().Sugar(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportGrant assembles the release bundle for an active grant and writes it
// to the blob store. It returns the stored object info. The grant must be in
// the active state and inside its access window.
func (e *Exporter) ExportGrant(ctx context.Context, activationID string) (blob.Info, error) {
	req, ok := e.store.GetActivation(activationID)
	if !ok {
		return blob.Info{}, domain.NotFoundError{Entity: domain.EntityActivation, ID: activationID}
	}
	now := e.now().UTC()
	if req.Status != domain.ActivationActive {
		return blob.Info{}, fmt.Errorf("export: activation %q is %s, not active", activationID, req.Status)
	}
	if req.ExpiresAt != nil && now.After(*req.ExpiresAt) {
		return blob.Info{}, fmt.Errorf("export: access window for activation %q closed at %s", activationID, req.ExpiresAt.Format(time.RFC3339))
	}
	owner, ok := e.store.GetOwner(req.OwnerID)
	if !ok {
		return blob.Info{}, domain.NotFoundError{Entity: domain.EntityOwner, ID: req.OwnerID}
	}
	grantee, ok := e.store.GetContact(req.ContactID)
	if !ok {
		return blob.Info{}, domain.NotFoundError{Entity: domain.EntityContact, ID: req.ContactID}
	}

	bundle := Bundle{
		GeneratedAt:  now,
		OwnerID:      owner.ID,
		OwnerName:    owner.DisplayName,
		ActivationID: req.ID,
		GranteeID:    grantee.ID,
		GranteeName:  grantee.Name,
		Source:       req.Source,
		GrantedAt:    req.GrantedAt,
		ExpiresAt:    req.ExpiresAt,
		Items:        []ReleasedItem{},
		Audit:        e.store.ListAudit(owner.ID),
	}
	for _, item := range e.store.ListVaultItems(owner.ID) {
		if item.Release != domain.ReleaseOnActivation {
			bundle.Withheld++
			continue
		}
		bundle.Items = append(bundle.Items, ReleasedItem{
			ID:       item.ID,
			Kind:     item.Kind,
			Title:    item.Title,
			Tags:     item.Tags,
			Envelope: item.Envelope,
			BlobKey:  item.BlobKey,
			Size:     item.Size,
		})
	}

	payload, err := domain.NewChangePayloadFromValue(bundle)
	if err != nil {
		return blob.Info{}, fmt.Errorf("export: encode bundle: %w", err)
	}
	key := BundleKey(owner.ID, req.ID, now)
	info, err := e.blobs.Put(ctx, key, strings.NewReader(string(payload.Raw())), blob.PutOptions{
		ContentType: BundleContentType,
		Metadata: map[string]string{
			"owner_id":      owner.ID,
			"activation_id": req.ID,
			"items":         fmt.Sprintf("%d", len(bundle.Items)),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("export: store bundle: %w", err)
	}

	if _, terr := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, aerr := tx.AppendAudit(domain.AuditEvent{
			OwnerID:  owner.ID,
			Actor:    grantee.ID,
			Action:   "export.bundle",
			Entity:   domain.EntityActivation,
			EntityID: req.ID,
			Detail: map[string]any{
				"blob_key": info.Key,
				"items":    len(bundle.Items),
				"withheld": bundle.Withheld,
			},
		})
		return aerr
	}); terr != nil {
		e.log.Warnw("release bundle stored but audit append failed", "activation_id", req.ID, "error", terr)
	}

	e.log.Infow("release bundle exported",
		"owner_id", owner.ID,
		"activation_id", req.ID,
		"blob_key", info.Key,
		"items", len(bundle.Items),
		"withheld", bundle.Withheld,
	)
	return info, nil
}

// BundleKey returns the blob key for a bundle generated at the given instant.
func BundleKey(ownerID, activationID string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%s/bundle-%s.json", ownerID, activationID, at.UTC().Format("20060102T150405Z"))
}
