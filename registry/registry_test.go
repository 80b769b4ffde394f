package registry

import (
	"testing"

	"github.com/hupe1980/parley/core"
	"github.com/hupe1980/parley/model"
	"github.com/stretchr/testify/assert"
)

func TestRegister_KnownParticipant(t *testing.T) {
	r := New()

	p, err := r.Register(Spec{ID: "Alpha", Persona: "You are Alpha.", Provider: model.NewMockModel("Alpha")})
	assert.NoError(t, err)
	assert.Equal(t, "Alpha", p.ID)

	got, err := r.Resolve("Alpha")
	assert.NoError(t, err)
	assert.Equal(t, "You are Alpha.", got.Persona)
}

func TestRegister_IdempotentOnID(t *testing.T) {
	r := New()

	_, err := r.Register(Spec{ID: "Alpha", Persona: "v1", Provider: model.NewMockModel("Alpha")})
	assert.NoError(t, err)
	_, err = r.Register(Spec{ID: "Alpha", Persona: "v2", Provider: model.NewMockModel("Alpha")})
	assert.NoError(t, err)

	assert.Len(t, r.IDs(), 1, "re-registering an id must not create a duplicate slot")

	got, err := r.Resolve("Alpha")
	assert.NoError(t, err)
	assert.Equal(t, "v2", got.Persona, "re-registering updates the persona")
}

func TestRegister_EmptyID(t *testing.T) {
	r := New()
	_, err := r.Register(Spec{Provider: model.NewMockModel("x")})
	assert.Error(t, err)
}

func TestRegister_CustomParticipant(t *testing.T) {
	r := New()

	p, err := r.Register(Spec{
		ID:      "Claude",
		Persona: "You are Claude.",
		Vendor:  VendorAnthropic,
		APIKey:  "test-key",
	})
	assert.NoError(t, err)
	assert.NotNil(t, p.Provider)

	_, err = r.Register(Spec{ID: "Bad", Vendor: Vendor("nope")})
	assert.Error(t, err)
}

func TestResolve_NotFound(t *testing.T) {
	r := New()
	_, err := r.Resolve("ghost")
	assert.ErrorIs(t, err, core.ErrParticipantNotFound)
}
