package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/srg/blesail/internal/decode"
	"github.com/srg/blesail/internal/sink"
	"github.com/srg/blesail/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ProfileTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
}

func TestProfileTestSuite(t *testing.T) {
	suite.Run(t, new(ProfileTestSuite))
}

func (s *ProfileTestSuite) SetupSuite() {
	s.helper = testutils.NewTestHelper(s.T())
}

func (s *ProfileTestSuite) writeFile(name, content string) string {
	path := filepath.Join(s.T().TempDir(), name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ProfileTestSuite) TestRegistryKeepsOrderAndDuplicates() {
	// GOAL: Verify the registry is an ordered list without duplicate detection
	//
	// TEST SCENARIO: Register the same characteristic twice → two descriptors, distinct sinks

	a, b := sink.NewText(), sink.NewText()
	reg := NewRegistry().
		Register("first", SensorService, WindSpeed, decode.Sint16Hundredths, a, nil).
		Register("second", SensorService, WindSpeed, decode.Sint16Hundredths, b, nil)

	ds := reg.Descriptors()
	s.Require().Len(ds, 2, "duplicate registration MUST yield two descriptors")
	s.Equal("first", ds[0].Name)
	s.Equal("second", ds[1].Name)
	s.NotSame(ds[0].Sink, ds[1].Sink)

	ds[0].Name = "mutated"
	s.Equal("first", reg.Descriptors()[0].Name, "Descriptors MUST return a copy")
}

func (s *ProfileTestSuite) TestBuiltins() {
	set := Builtins()
	s.Equal([]string{"wind", "wind-by-name", "wind-full"}, set.Names())

	wind, err := set.Get("wind")
	s.Require().NoError(err)
	s.Equal([]string{SensorService}, wind.Filter.Services)
	s.Len(wind.Sources, 9)
	s.Require().NoError(wind.Validate(NewDecoders("", s.helper.Logger)))

	byName, err := set.Get("wind-by-name")
	s.Require().NoError(err)
	s.Equal(SensorName, byName.Filter.Name)
	s.Equal(wind.Sources, byName.Sources, "both variants MUST share the same sources")

	full, err := set.Get("wind-full")
	s.Require().NoError(err)
	s.Len(full.Sources, 10)
	s.Equal("temperature", full.Sources[0].Name)
	s.Equal("90D3D001-C950-4DD6-9410-2B7AEB1DD7D8", full.Sources[0].Characteristic)

	_, err = set.Get("nope")
	s.ErrorContains(err, "unknown profile")
}

func (s *ProfileTestSuite) TestBuildResolvesDecodersAndSinks() {
	// GOAL: Verify Build turns source specs into descriptors with decoders, sinks and history
	//
	// TEST SCENARIO: Build wind with default history 5 → 9 descriptors, each with its own sink and history

	wind, err := Builtins().Get("wind")
	s.Require().NoError(err)

	texts := map[string]*sink.Text{}
	reg, err := wind.Build(NewDecoders("", s.helper.Logger), func(src SourceSpec, h *sink.History) sink.Sink {
		s.NotNil(h, "history MUST be created when a default is set")
		t := sink.NewText()
		texts[src.Name] = t
		return t
	}, &BuildOptions{History: 5})
	s.Require().NoError(err)

	ds := reg.Descriptors()
	s.Len(ds, 9)
	s.Len(texts, 9)

	lat := ds[2]
	s.Equal("latitude", lat.Name)
	s.Equal(5, lat.Log.Limit())
	got, err := lat.Decode([]byte{0x3F, 0xF0, 0, 0, 0, 0, 0, 0})
	s.Require().NoError(err)
	s.Equal("1.000000", got)
	s.Same(texts["latitude"], lat.Sink)
}

func (s *ProfileTestSuite) TestBuildUnknownDecoder() {
	p := &Profile{Name: "bad", Sources: []SourceSpec{
		{Name: "a", Service: SensorService, Characteristic: WindSpeed, Decoder: "uint8"},
	}}
	_, err := p.Build(nil, nil, nil)
	s.ErrorContains(err, "unknown decoder")
}

func (s *ProfileTestSuite) TestLoadFile() {
	// GOAL: Verify YAML profiles get defaults and Lua decoders relative to the file
	//
	// TEST SCENARIO: File with omitted service/decoder and a lua decoder → defaults applied, script decodes

	dir := s.T().TempDir()
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "tenths.lua"), []byte(`
function decode(bytes, n)
	local v = bytes[1] * 256 + bytes[2]
	if v >= 32768 then v = v - 65536 end
	return string.format("%.1f", v / 10)
end
`), 0o600))

	path := filepath.Join(dir, "boat.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
profiles:
  - name: boat
    description: test boat
    filter:
      name_prefix: Boat
    sources:
      - name: wind_speed
        characteristic: 90D3D002-C950-4DD6-9410-2B7AEB1DD7D8
        history: 10
      - name: angle
        characteristic: 90D3D003-C950-4DD6-9410-2B7AEB1DD7D8
        decoder: lua:tenths.lua
`), 0o600))

	decoders := NewDecoders("", s.helper.Logger)
	defer decoders.Close()

	set, err := LoadFile(path, decoders)
	s.Require().NoError(err)

	boat, err := set.Get("boat")
	s.Require().NoError(err)
	s.Equal("Boat", boat.Filter.NamePrefix)
	s.Equal(SensorService, boat.Sources[0].Service, "omitted service MUST default to the sensor service")
	s.Equal(decode.Sint16, boat.Sources[0].Decoder, "omitted decoder MUST default to sint16")

	reg, err := boat.Build(decoders, nil, nil)
	s.Require().NoError(err)
	ds := reg.Descriptors()
	s.Equal(10, ds[0].Log.Limit())
	s.Nil(ds[1].Log)

	got, err := ds[1].Decode([]byte{0xFF, 0x38})
	s.Require().NoError(err)
	s.Equal("-20.0", got)
}

func (s *ProfileTestSuite) TestLoadFileErrors() {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", ``, "no profiles defined"},
		{"unknown field", "profiles:\n  - name: x\n    colour: red\n", "invalid profile YAML"},
		{"bad decoder", "profiles:\n  - name: x\n    sources:\n      - name: a\n        characteristic: 2a37\n        decoder: bogus\n", "unknown decoder"},
		{"missing script", "profiles:\n  - name: x\n    sources:\n      - name: a\n        characteristic: 2a37\n        decoder: lua:nope.lua\n", "nope.lua"},
		{"bad uuid", "profiles:\n  - name: x\n    sources:\n      - name: a\n        characteristic: zz\n", "invalid UUID"},
		{"no sources", "profiles:\n  - name: x\n", "has no sources"},
		{"duplicates", "profiles:\n  - name: x\n    sources: [{name: a, characteristic: 2a37}]\n  - name: x\n    sources: [{name: a, characteristic: 2a37}]\n", "duplicate profile names"},
	}

	for _, c := range cases {
		s.Run(c.name, func() {
			_, err := LoadFile(s.writeFile("p.yaml", c.content), nil)
			s.Require().Error(err, "invalid file MUST be rejected")
			s.True(strings.Contains(err.Error(), c.want), "error %q MUST mention %q", err, c.want)
		})
	}

	_, err := LoadFile(filepath.Join(s.T().TempDir(), "missing.yaml"), nil)
	s.ErrorContains(err, "failed to read profile file")
}

func (s *ProfileTestSuite) TestMergeOverridesBuiltins() {
	set := Builtins()
	custom := NewSet()
	custom.Add(&Profile{Name: "wind", Description: "mine"})
	custom.Add(&Profile{Name: "extra"})
	set.Merge(custom)

	s.Equal([]string{"wind", "wind-by-name", "wind-full", "extra"}, set.Names())
	p, err := set.Get("wind")
	s.Require().NoError(err)
	s.Equal("mine", p.Description)
}
