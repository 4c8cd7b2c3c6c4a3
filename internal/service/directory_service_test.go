package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nurpe/carbon-credits/internal/ledger/ledgertest"
)

func TestDirectoryList_PhotoFailureKeepsOrganization(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := ledgertest.New()
	l.Register(orgA, "Green Acres", "QmLogoA", whole(5))
	l.Register(orgB, "Broken Logo", "QmBroken", whole(0))
	l.Register(orgC, "No Logo", "", whole(1))
	store := &fakeMedia{
		blobs: map[string][]byte{"QmLogoA": evidencePNG},
		fail:  map[string]bool{"QmBroken": true},
	}
	svc := NewDirectoryService(store, testConfig(), nopLog)

	orgs, err := svc.List(context.Background(), session(l, orgA))
	require.NoError(t, err)
	require.Len(t, orgs, 3)

	assert.Equal(t, "Green Acres", orgs[0].Name)
	assert.Equal(t, evidencePNG, orgs[0].Photo)
	assert.Equal(t, "image/png", orgs[0].PhotoContentType)
	assert.Equal(t, "5", orgs[0].Balance.String())

	assert.Equal(t, "Broken Logo", orgs[1].Name)
	assert.Nil(t, orgs[1].Photo)
	assert.False(t, orgs[1].HasPhoto())

	assert.Equal(t, "No Logo", orgs[2].Name)
	assert.Nil(t, orgs[2].Photo)
	assert.True(t, orgs[2].IsRegistered)
}

func TestDirectoryList_ReflectsCurrentLedgerRecord(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := ledgertest.New()
	l.Register(orgA, "Green Acres", "", whole(5))
	l.Register(orgB, "Gone Away", "", whole(3))
	l.Revoke(orgB)
	l.SetBalance(orgA, whole(80))
	svc := NewDirectoryService(&fakeMedia{}, testConfig(), nopLog)

	orgs, err := svc.List(context.Background(), session(l, orgA))
	require.NoError(t, err)
	require.Len(t, orgs, 2)

	assert.True(t, orgs[0].IsRegistered)
	assert.Equal(t, "80", orgs[0].Balance.String())
	assert.Equal(t, "Gone Away", orgs[1].Name)
	assert.False(t, orgs[1].IsRegistered)
}

func TestDirectoryList_LedgerLookupFailureFailsListing(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := ledgertest.New()
	l.Register(orgA, "Green Acres", "QmLogoA", whole(5))
	l.FailNext("organizations", errors.New("rpc unavailable"))
	svc := NewDirectoryService(&fakeMedia{blobs: map[string][]byte{"QmLogoA": evidencePNG}}, testConfig(), nopLog)

	_, err := svc.List(context.Background(), session(l, orgA))
	assert.ErrorContains(t, err, "rpc unavailable")
}

func TestDirectoryList_RequiresSession(t *testing.T) {
	svc := NewDirectoryService(&fakeMedia{}, testConfig(), nopLog)
	_, err := svc.List(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestDirectoryMedia(t *testing.T) {
	svc := NewDirectoryService(&fakeMedia{blobs: map[string][]byte{"QmLogoA": evidencePNG}}, testConfig(), nopLog)

	res, err := svc.Media(context.Background(), "QmLogoA")
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)

	_, err = svc.Media(context.Background(), "QmGone")
	assert.ErrorIs(t, err, ErrNotFound)
}
