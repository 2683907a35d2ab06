package fixture

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestState_MergeKeepsUntouchedFragments(t *testing.T) {
	base := State{"props": raw(`{"label":"a"}`), "classState": raw(`{"count":1}`)}

	got := base.Merge(State{"props": raw(`{"label":"b"}`)})

	assert.JSONEq(t, `{"label":"b"}`, string(got["props"]))
	assert.JSONEq(t, `{"count":1}`, string(got["classState"]))
	assert.JSONEq(t, `{"label":"a"}`, string(base["props"]), "merge must not mutate the receiver")
}

func TestState_MergeNullRemovesFragment(t *testing.T) {
	base := State{"props": raw(`{}`), "inputs": raw(`[]`)}

	got := base.Merge(State{"inputs": raw(`null`)})

	assert.Equal(t, []string{"props"}, got.Fragments())
}

func TestState_MergeSequenceIsLastWriteWinsPerFragment(t *testing.T) {
	changes := []State{
		{"props": raw(`1`)},
		{"classState": raw(`2`)},
		{"props": raw(`3`), "inputs": raw(`4`)},
		{"classState": raw(`5`)},
	}

	var s State
	for _, c := range changes {
		s = s.Merge(c)
	}

	want := State{"props": raw(`3`), "classState": raw(`5`), "inputs": raw(`4`)}
	assert.True(t, want.Equal(s), "got %v", s)
}

func TestState_Clone(t *testing.T) {
	s := State{"props": raw(`{"a":1}`)}
	c := s.Clone()
	c["props"][2] = 'b'

	assert.JSONEq(t, `{"a":1}`, string(s["props"]))
	assert.Nil(t, State(nil).Clone())
}
