package blesail_test

import (
	"testing"

	"github.com/srg/blesail"
	"github.com/srg/blesail/internal/profile"
	"github.com/srg/blesail/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleProfile(t *testing.T) {
	// GOAL: Verify the shipped example profile loads and its Lua decoder works
	//
	// TEST SCENARIO: Load examples/boat.yaml → boat profile with 5 sources → knots decoder turns FF 38 into "-3.9 kn"

	decoders := profile.NewDecoders("", testutils.NewTestHelper(t).Logger)
	defer decoders.Close()

	set, err := profile.LoadFile("examples/boat.yaml", decoders)
	require.NoError(t, err, "example profile MUST be valid")

	p, err := set.Get("boat")
	require.NoError(t, err)
	require.Len(t, p.Sources, 5)
	assert.Equal(t, profile.SensorService, p.Sources[1].Service, "omitted service MUST default to the sensor service")
	assert.Equal(t, "sint16", p.Sources[1].Decoder, "omitted decoder MUST default to sint16")

	reg, err := p.Build(decoders, nil, nil)
	require.NoError(t, err)

	knots := reg.Descriptors()[2]
	text, err := knots.Decode([]byte{0xFF, 0x38})
	require.NoError(t, err)
	assert.Equal(t, "-3.9 kn", text)

	assert.Contains(t, blesail.ExampleProfile, "lua:decoders/knots.lua", "embedded profile MUST match the file")
	assert.Contains(t, blesail.ExampleKnotsDecoder, "function decode(bytes, n)")
}
