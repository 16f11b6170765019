package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPlatform(t *testing.T) {
	name, ok := CanonicalPlatform(" macos")
	assert.True(t, ok)
	assert.Equal(t, "MacOS", name)

	_, ok = CanonicalPlatform("symbian")
	assert.False(t, ok)
}

func TestPlatformFromLabel(t *testing.T) {
	assert.Equal(t, "iOS", PlatformFromLabel("alice_ios_3f9a1c2b7d10"))
	assert.Equal(t, "Android", PlatformFromLabel("john_doe_android_abc"))
	assert.Empty(t, PlatformFromLabel("legacy-client"))
	assert.Empty(t, PlatformFromLabel("alice_palmos_abc"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "alice", UserIdentity{ID: 42, Username: "alice"}.DisplayName())
	assert.Equal(t, "42", UserIdentity{ID: 42}.DisplayName())
}

func TestErrorTaxonomy(t *testing.T) {
	inner := &TransportError{Op: "add client", StatusCode: 500}
	err := &ProvisioningError{Stage: StageAddConnection, Err: inner}

	assert.Equal(t, StageAddConnection, StageOf(err, StagePanel))
	assert.Equal(t, StagePanel, StageOf(inner, StagePanel))
	assert.ErrorAs(t, err, &inner)
	assert.Equal(t, "add client: status 500", inner.Error())

	assert.True(t, IsNotFound(&NotFoundError{What: "connection"}))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "connection not found", (&NotFoundError{What: "connection"}).Error())

	auth := &AuthError{Err: ErrNoSessionCookie}
	assert.ErrorIs(t, auth, ErrNoSessionCookie)
}
