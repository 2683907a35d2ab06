package protocol

import (
	"errors"

	"github.com/ayusman/fixtureplay/internal/fixture"
)

var (
	errNoRenderer = errors.New("missing rendererId")
	errNoFixture  = errors.New("missing fixtureId.path")
	errNoList     = errors.New("missing fixtures")
)

func validateFixtureID(id fixture.ID) error {
	if id.Path == "" {
		return errNoFixture
	}
	return nil
}

func (m FixtureListUpdate) validate() error {
	if m.RendererID == "" {
		return errNoRenderer
	}
	if m.Fixtures == nil {
		return errNoList
	}
	return m.Fixtures.Validate()
}

func (m SelectFixture) validate() error {
	if m.RendererID == "" {
		return errNoRenderer
	}
	return validateFixtureID(m.FixtureID)
}

func (m UnselectFixture) validate() error {
	if m.RendererID == "" {
		return errNoRenderer
	}
	return nil
}

func (m FixtureStateChange) validate() error {
	if m.RendererID == "" {
		return errNoRenderer
	}
	return validateFixtureID(m.FixtureID)
}

func (m SetFixtureState) validate() error {
	if m.RendererID == "" {
		return errNoRenderer
	}
	return validateFixtureID(m.FixtureID)
}

func (PingRenderers) validate() error { return nil }
