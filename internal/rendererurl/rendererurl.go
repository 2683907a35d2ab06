// Package rendererurl builds and parses human-addressable renderer URLs.
//
// A renderer URL carries the selected fixture as a base64 encoded JSON
// fixture id plus a "locked" flag. A configured base URL may contain the
// <fixture> placeholder, which is replaced by the encoded id, or by "index"
// when no fixture is selected.
package rendererurl

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ayusman/fixtureplay/internal/fixture"
)

// Placeholder is substituted with the encoded fixture id.
const Placeholder = "<fixture>"

// IndexToken replaces the placeholder when no fixture is selected.
const IndexToken = "index"

// Mode selects between the dev server and static export renderer URLs.
type Mode string

// Modes.
const (
	ModeDev    Mode = "dev"
	ModeExport Mode = "export"
)

// ErrInvalidFixtureParam is returned when a fixtureId query value cannot be decoded.
var ErrInvalidFixtureParam = errors.New("invalid fixtureId parameter")

// URLs holds the renderer URL per mode. A single URL serves both modes when
// only Dev is set.
type URLs struct {
	Dev    string `mapstructure:"dev"`
	Export string `mapstructure:"export"`
}

// Pick returns the renderer URL for mode, or "" when none is configured.
func Pick(urls URLs, mode Mode) string {
	if mode == ModeExport && urls.Export != "" {
		return urls.Export
	}
	return urls.Dev
}

// Create returns the URL that opens fixtureID (nil for none) in a renderer.
func Create(base string, fixtureID *fixture.ID, locked bool) string {
	if strings.Contains(base, Placeholder) {
		if fixtureID == nil {
			return strings.ReplaceAll(base, Placeholder, IndexToken)
		}
		return strings.ReplaceAll(base, Placeholder, EncodeFixture(*fixtureID)) + queryString(nil, locked)
	}

	if fixtureID == nil {
		return base
	}
	if hostOnly(base) {
		base += "/"
	}
	return base + queryString(fixtureID, locked)
}

// EncodeFixture encodes a fixture id as base64 JSON.
func EncodeFixture(id fixture.ID) string {
	data, _ := json.Marshal(id)
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeFixture is the inverse of EncodeFixture.
func DecodeFixture(s string) (fixture.ID, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fixture.ID{}, fmt.Errorf("%w: %v", ErrInvalidFixtureParam, err)
	}
	var id fixture.ID
	if err := json.Unmarshal(data, &id); err != nil {
		return fixture.ID{}, fmt.Errorf("%w: %v", ErrInvalidFixtureParam, err)
	}
	if id.Path == "" {
		return fixture.ID{}, fmt.Errorf("%w: missing path", ErrInvalidFixtureParam)
	}
	return id, nil
}

// ParseQuery reads the fixture id and locked flag from a renderer URL query.
func ParseQuery(values url.Values) (*fixture.ID, bool, error) {
	locked := values.Get("locked") == "true"
	raw := values.Get("fixtureId")
	if raw == "" {
		return nil, locked, nil
	}
	id, err := DecodeFixture(raw)
	if err != nil {
		return nil, locked, err
	}
	return &id, locked, nil
}

func queryString(fixtureID *fixture.ID, locked bool) string {
	values := url.Values{}
	if fixtureID != nil {
		values.Set("fixtureId", EncodeFixture(*fixtureID))
	}
	if locked {
		values.Set("locked", "true")
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

func hostOnly(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" && (u.Path == "" || u.Path == "/") && !strings.HasSuffix(raw, "/")
}
