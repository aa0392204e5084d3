package export

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"legacycore/internal/core"
	blobmem "legacycore/internal/infra/blob/memory"
	"legacycore/pkg/domain"
)

type fixture struct {
	svc      *core.Service
	blobs    *blobmem.Store
	exp      *Exporter
	now      *time.Time
	owner    domain.OwnerAccount
	grantee  domain.Contact
	activeID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	svc := core.NewInMemoryService(core.DefaultRulesEngine(), core.WithClock(clock))
	owner, _, err := svc.CreateOwner(ctx, domain.OwnerAccount{Email: "ada@example.com", DisplayName: "Ada"})
	require.NoError(t, err)
	grantee, _, err := svc.CreateContact(ctx, domain.Contact{
		OwnerID:  owner.ID,
		Name:     "Grace",
		Email:    "grace@example.com",
		Roles:    []domain.ContactRole{domain.RoleTrustee},
		Verified: true,
	})
	require.NoError(t, err)

	_, _, err = svc.CreateVaultItem(ctx, domain.VaultItem{
		OwnerID:  owner.ID,
		Kind:     domain.ItemNote,
		Title:    "last wishes",
		Release:  domain.ReleaseOnActivation,
		Envelope: domain.SealedEnvelope{Version: 1, Salt: []byte{1}, Nonce: []byte{2}, Cipher: []byte("sealed")},
	})
	require.NoError(t, err)
	_, _, err = svc.CreateVaultItem(ctx, domain.VaultItem{
		OwnerID: owner.ID,
		Kind:    domain.ItemDocument,
		Title:   "deed scan",
		Release: domain.ReleaseOnActivation,
		BlobKey: "vault/" + owner.ID + "/deed",
		Size:    2048,
	})
	require.NoError(t, err)
	_, _, err = svc.CreateVaultItem(ctx, domain.VaultItem{
		OwnerID: owner.ID,
		Kind:    domain.ItemPassword,
		Title:   "diary password",
		Release: domain.ReleaseNever,
	})
	require.NoError(t, err)

	req, _, err := svc.PanicActivate(ctx, owner.ID, grantee.ID, "hospitalized")
	require.NoError(t, err)
	now = now.Add(core.PanicWait + time.Minute)
	req, _, err = svc.ApproveActivation(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ActivationActive, req.Status)

	fx := &fixture{
		svc:      svc,
		blobs:    blobmem.New(),
		now:      &now,
		owner:    owner,
		grantee:  grantee,
		activeID: req.ID,
	}
	fx.exp = New(svc.Store(), fx.blobs, WithClock(func() time.Time { return *fx.now }))
	return fx
}

func TestExportGrantWritesBundle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	info, err := fx.exp.ExportGrant(ctx, fx.activeID)
	require.NoError(t, err)
	require.Equal(t, BundleKey(fx.owner.ID, fx.activeID, *fx.now), info.Key)
	require.Equal(t, BundleContentType, info.ContentType)

	_, rc, err := fx.blobs.Get(ctx, info.Key)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	var bundle Bundle
	require.NoError(t, json.Unmarshal(raw, &bundle))
	require.Equal(t, fx.owner.ID, bundle.OwnerID)
	require.Equal(t, fx.grantee.ID, bundle.GranteeID)
	require.Len(t, bundle.Items, 2)
	require.Equal(t, 1, bundle.Withheld)
	require.NotEmpty(t, bundle.Audit)

	titles := map[string]bool{}
	for _, item := range bundle.Items {
		titles[item.Title] = true
	}
	require.True(t, titles["last wishes"])
	require.True(t, titles["deed scan"])
	require.False(t, titles["diary password"])
}

func TestExportGrantAppendsAudit(t *testing.T) {
	fx := newFixture(t)

	info, err := fx.exp.ExportGrant(context.Background(), fx.activeID)
	require.NoError(t, err)

	var found bool
	for _, ev := range fx.svc.Store().ListAudit(fx.owner.ID) {
		if ev.Action == "export.bundle" && ev.EntityID == fx.activeID {
			require.Equal(t, info.Key, ev.Detail["blob_key"])
			found = true
		}
	}
	require.True(t, found, "expected an export.bundle audit event")
}

func TestExportGrantRefusals(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.exp.ExportGrant(ctx, "missing")
	require.ErrorContains(t, err, "not found")

	// A revoked grant no longer releases anything.
	revoked, _, err := fx.svc.RevokeActivation(ctx, fx.activeID, "owner back online")
	require.NoError(t, err)
	require.Equal(t, domain.ActivationRevoked, revoked.Status)
	_, err = fx.exp.ExportGrant(ctx, fx.activeID)
	require.ErrorContains(t, err, "not active")
}

func TestExportGrantClosedWindow(t *testing.T) {
	fx := newFixture(t)

	*fx.now = fx.now.Add(8 * 24 * time.Hour)
	_, err := fx.exp.ExportGrant(context.Background(), fx.activeID)
	require.ErrorContains(t, err, "access window")
}
