package remoteid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlaceholder(t *testing.T) {
	rid := NewPlaceholder()

	assert.True(t, rid.IsPlaceholder())
	assert.False(t, rid.IsIssued())
	assert.False(t, rid.IsZero())
	assert.Empty(t, rid.IssuedID())
	assert.True(t, len(rid.String()) > len("local-"))
	assert.Contains(t, rid.String(), "local-")
}

func TestPlaceholdersAreUnique(t *testing.T) {
	a := NewPlaceholder()
	b := NewPlaceholder()
	assert.NotEqual(t, a.String(), b.String())
}

func TestIssued(t *testing.T) {
	rid := Issued("gid://platform/Customer/12345")

	assert.True(t, rid.IsIssued())
	assert.False(t, rid.IsPlaceholder())
	assert.Equal(t, "gid://platform/Customer/12345", rid.IssuedID())
	assert.Equal(t, "gid://platform/Customer/12345", rid.String())
}

func TestParseRoundTrip(t *testing.T) {
	placeholder := NewPlaceholder()

	parsed, err := Parse(placeholder.String())
	require.NoError(t, err)
	assert.True(t, parsed.IsPlaceholder())
	assert.Equal(t, placeholder.String(), parsed.String())

	parsed, err = Parse("987654321")
	require.NoError(t, err)
	assert.True(t, parsed.IsIssued())
	assert.Equal(t, "987654321", parsed.IssuedID())
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
}

func TestParseRejectsMalformedPlaceholder(t *testing.T) {
	_, err := Parse("local-not-a-ulid")
	require.Error(t, err)
}

func TestZeroValueIsInvalid(t *testing.T) {
	var rid RemoteID

	assert.True(t, rid.IsZero())
	assert.False(t, rid.IsIssued())

	_, err := rid.Value()
	require.Error(t, err)
}

func TestScanAndValue(t *testing.T) {
	original := NewPlaceholder()

	v, err := original.Value()
	require.NoError(t, err)

	var scanned RemoteID
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, original, scanned)

	require.NoError(t, scanned.Scan([]byte("555")))
	assert.True(t, scanned.IsIssued())
	assert.Equal(t, "555", scanned.IssuedID())

	require.Error(t, scanned.Scan(42))
}

func TestJSONRoundTrip(t *testing.T) {
	original := Issued("777")

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, `"777"`, string(data))

	var decoded RemoteID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}
