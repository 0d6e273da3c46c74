package lua

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DecodeFunction is the global a decoder script must define: decode(bytes, n) -> string|number
const DecodeFunction = "decode"

// ScriptDecoder decodes payloads with a Lua script.
//
// Example script:
//
//	function decode(bytes, n)
//	    if n < 2 then error("short payload") end
//	    local v = bytes[1] * 256 + bytes[2]
//	    if v >= 32768 then v = v - 65536 end
//	    return string.format("%.1f", v / 10)
//	end
type ScriptDecoder struct {
	engine *LuaEngine
}

// NewScriptDecoder loads a decoder script from a file
func NewScriptDecoder(path string, logger *logrus.Logger) (*ScriptDecoder, error) {
	engine := NewLuaEngine(filepath.Base(path), logger)
	if err := engine.LoadScriptFile(path); err != nil {
		engine.Close()
		return nil, err
	}
	return newScriptDecoder(engine)
}

// NewScriptDecoderFromSource loads a decoder script from source code
func NewScriptDecoderFromSource(name, source string, logger *logrus.Logger) (*ScriptDecoder, error) {
	engine := NewLuaEngine(name, logger)
	if err := engine.LoadScript(source); err != nil {
		engine.Close()
		return nil, err
	}
	return newScriptDecoder(engine)
}

func newScriptDecoder(engine *LuaEngine) (*ScriptDecoder, error) {
	if !engine.HasFunction(DecodeFunction) {
		engine.Close()
		return nil, &LuaError{Type: "api", Message: fmt.Sprintf("script does not define %s(bytes, n)", DecodeFunction), Source: engine.name}
	}
	return &ScriptDecoder{engine: engine}, nil
}

// Decode runs decode(bytes, n) on a copy of data
func (d *ScriptDecoder) Decode(data []byte) (string, error) {
	return d.engine.CallBytes(DecodeFunction, data)
}

// Close releases the Lua state
func (d *ScriptDecoder) Close() {
	d.engine.Close()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
