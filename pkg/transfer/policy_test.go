package transfer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ConflictPolicy
		wantErr bool
	}{
		{in: "replace", want: Replace},
		{in: "overwrite", want: Replace},
		{in: "Rename", want: Rename},
		{in: "use-existing", want: UseExisting},
		{in: "use_existing", want: UseExisting},
		{in: " keep ", want: UseExisting},
		{in: "", wantErr: true},
		{in: "skip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPolicy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConflictPolicy_ZeroValueInvalid(t *testing.T) {
	var p ConflictPolicy
	assert.False(t, p.Valid())
	assert.Equal(t, "ConflictPolicy(0)", p.String())

	_, err := p.MarshalText()
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestConflictPolicy_String(t *testing.T) {
	assert.Equal(t, "replace", Replace.String())
	assert.Equal(t, "rename", Rename.String())
	assert.Equal(t, "use-existing", UseExisting.String())
	assert.Len(t, Policies, 3)
	for _, p := range Policies {
		assert.True(t, p.Valid())
	}
}

func TestConflictPolicy_TextRoundTrip(t *testing.T) {
	type doc struct {
		OnExists ConflictPolicy `json:"on_exists" yaml:"on_exists"`
	}

	var fromYAML doc
	require.NoError(t, yaml.Unmarshal([]byte("on_exists: use-existing\n"), &fromYAML))
	assert.Equal(t, UseExisting, fromYAML.OnExists)

	data, err := json.Marshal(doc{OnExists: Rename})
	require.NoError(t, err)
	assert.JSONEq(t, `{"on_exists":"rename"}`, string(data))

	var bad doc
	assert.Error(t, json.Unmarshal([]byte(`{"on_exists":"sideways"}`), &bad))
}
