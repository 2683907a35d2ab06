package rendererurl

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/fixtureplay/internal/fixture"
)

var testFixture = fixture.ID{Path: "src/Button.fixture.tsx", Name: "primary"}

func TestCreate(t *testing.T) {
	encoded := url.QueryEscape(EncodeFixture(testFixture))

	tests := []struct {
		name    string
		base    string
		fixture *fixture.ID
		locked  bool
		want    string
	}{
		{
			name: "no fixture keeps base",
			base: "http://localhost:5000/renderer.html",
			want: "http://localhost:5000/renderer.html",
		},
		{
			name:    "fixture appended as query",
			base:    "http://localhost:5000/renderer.html",
			fixture: &testFixture,
			want:    "http://localhost:5000/renderer.html?fixtureId=" + encoded,
		},
		{
			name:    "host only gets trailing slash",
			base:    "http://localhost:5000",
			fixture: &testFixture,
			locked:  true,
			want:    "http://localhost:5000/?fixtureId=" + encoded + "&locked=true",
		},
		{
			name: "placeholder without fixture",
			base: "http://localhost:5000/<fixture>.html",
			want: "http://localhost:5000/index.html",
		},
		{
			name:    "placeholder with fixture",
			base:    "http://localhost:5000/<fixture>.html",
			fixture: &testFixture,
			locked:  true,
			want:    "http://localhost:5000/" + EncodeFixture(testFixture) + ".html?locked=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Create(tt.base, tt.fixture, tt.locked))
		})
	}
}

func TestEncodeDecodeFixture(t *testing.T) {
	for _, id := range []fixture.ID{testFixture, {Path: "a.ts"}} {
		got, err := DecodeFixture(EncodeFixture(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	_, err := DecodeFixture("%%%")
	assert.True(t, errors.Is(err, ErrInvalidFixtureParam))

	_, err = DecodeFixture(EncodeFixture(fixture.ID{}))
	assert.True(t, errors.Is(err, ErrInvalidFixtureParam))
}

func TestParseQuery(t *testing.T) {
	u, err := url.Parse(Create("http://localhost:5000", &testFixture, true))
	require.NoError(t, err)

	id, locked, err := ParseQuery(u.Query())
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, testFixture, *id)
	assert.True(t, locked)

	id, locked, err = ParseQuery(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.False(t, locked)
}

func TestPick(t *testing.T) {
	urls := URLs{Dev: "http://localhost:5000", Export: "/renderer.html"}
	assert.Equal(t, "http://localhost:5000", Pick(urls, ModeDev))
	assert.Equal(t, "/renderer.html", Pick(urls, ModeExport))
	assert.Equal(t, "http://localhost:5000", Pick(URLs{Dev: "http://localhost:5000"}, ModeExport))
	assert.Equal(t, "", Pick(URLs{}, ModeDev))
}
