package lua

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
)

// DefaultInstructionLimit bounds a single function call so a runaway script cannot stall a stream
const DefaultInstructionLimit = 1_000_000

// blockedFunctions are removed from the sandbox: decoders must stay pure
var blockedFunctions = map[string][]string{
	"os": {"execute", "exit", "remove", "rename", "tmpname", "getenv"},
	"io": {"read", "lines", "open", "popen", "input", "output"},
	"":   {"dofile", "loadfile", "require"},
}

// OutputRecord represents a single output record from Lua script execution
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // script name
}

// LuaError represents detailed Lua execution errors
type LuaError struct {
	Type       string // "syntax", "runtime", "api"
	Message    string
	Line       int
	Source     string
	Underlying error
}

func (e *LuaError) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}

	prefix := "Lua error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("Lua %s error (%s)", e.Type, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *LuaError) Unwrap() error {
	return e.Underlying
}

func (e *LuaError) Is(target error) bool {
	if target == nil {
		return false
	}
	var luaErr *LuaError
	if errors.As(target, &luaErr) {
		return e.Type == luaErr.Type
	}
	return false
}

// LuaEngine owns one sandboxed Lua state. All access to the state is serialized.
type LuaEngine struct {
	state            *lua.State
	stateMutex       sync.Mutex
	logger           *logrus.Logger
	name             string
	instructionLimit int
	onOutput         func(OutputRecord)
}

// NewLuaEngine creates a sandboxed Lua engine; print() output goes to the logger at debug level
func NewLuaEngine(name string, logger *logrus.Logger) *LuaEngine {
	if logger == nil {
		logger = logrus.New()
	}
	engine := &LuaEngine{
		logger:           logger,
		name:             name,
		instructionLimit: DefaultInstructionLimit,
	}
	engine.onOutput = func(rec OutputRecord) {
		engine.logger.WithField("script", rec.Source).Debug(strings.TrimRight(rec.Content, "\n"))
	}

	engine.Reset()
	return engine
}

// OnOutput replaces the print() sink
func (e *LuaEngine) OnOutput(fn func(OutputRecord)) {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	e.onOutput = fn
}

// SetInstructionLimit changes the per-call instruction budget; 0 disables it
func (e *LuaEngine) SetInstructionLimit(n int) {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	e.instructionLimit = n
}

// DoWithState runs callback with exclusive access to the Lua state
func (e *LuaEngine) DoWithState(callback func(*lua.State) interface{}) interface{} {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state == nil {
		return nil
	}
	return callback(e.state)
}

func (e *LuaEngine) registerPrintCaptureInternal() {
	e.state.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)

		for i := 1; i <= top; i++ {
			if L.IsNil(i) {
				parts = append(parts, "nil")
			} else if L.IsBoolean(i) {
				if L.ToBoolean(i) {
					parts = append(parts, "true")
				} else {
					parts = append(parts, "false")
				}
			} else if L.IsString(i) {
				parts = append(parts, L.ToString(i))
			} else {
				// For tables, functions, threads, userdata: call Lua tostring()
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}

		if e.onOutput != nil {
			e.onOutput(OutputRecord{
				Content:   strings.Join(parts, "\t") + "\n",
				Timestamp: time.Now(),
				Source:    e.name,
			})
		}
		return 0
	})
	e.state.SetGlobal("print")
}

// sandboxInternal replaces functions with side effects by stubs that raise an error
func (e *LuaEngine) sandboxInternal() {
	L := e.state
	blocked := func(name string) lua.LuaGoFunction {
		return func(L *lua.State) int {
			L.RaiseError(fmt.Sprintf("%s is blocked", name))
			return 0
		}
	}

	for table, funcs := range blockedFunctions {
		if table == "" {
			for _, fn := range funcs {
				L.PushGoFunction(blocked(fn))
				L.SetGlobal(fn)
			}
			continue
		}

		L.GetGlobal(table)
		if !L.IsTable(-1) {
			L.Pop(1)
			continue
		}
		for _, fn := range funcs {
			L.PushString(fn)
			L.PushGoFunction(blocked(table + "." + fn))
			L.SetTable(-3)
		}
		L.Pop(1)
	}
}

// parseLuaError extracts detailed info from the error message on top of the stack, or from err
func (e *LuaEngine) parseLuaError(errType string, err error) *LuaError {
	errMsg := ""
	switch {
	case err != nil:
		errMsg = err.Error()
	case e.state.GetTop() > 0 && e.state.IsString(-1):
		errMsg = e.state.ToString(-1)
		e.state.Pop(1)
	case e.state.GetTop() > 0:
		errMsg = "non-string error object"
		e.state.Pop(1)
	default:
		errMsg = "unknown Lua error"
	}

	line := 0
	message := errMsg
	if strings.Contains(errMsg, ":") {
		parts := strings.SplitN(errMsg, ":", 3)
		if len(parts) >= 3 {
			if parsed, scanErr := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); scanErr == nil && parsed == 1 {
				message = strings.TrimSpace(parts[2])
			}
		}
	}

	return &LuaError{
		Type:       errType,
		Message:    message,
		Line:       line,
		Source:     e.name,
		Underlying: err,
	}
}

// LoadScriptFile loads and runs a Lua script from a file
func (e *LuaEngine) LoadScriptFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", filename, err)
	}
	return e.LoadScript(string(content))
}

// LoadScript compiles the script and runs its top-level chunk, defining its globals
func (e *LuaEngine) LoadScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return &LuaError{Type: "api", Message: "empty script", Source: e.name}
	}

	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state == nil {
		return &LuaError{Type: "api", Message: "engine closed", Source: e.name}
	}

	if status := e.state.LoadString(script); status != 0 {
		return e.parseLuaError("syntax", nil)
	}
	e.applyLimitInternal()
	if err := e.state.Call(0, 0); err != nil {
		return e.parseLuaError("runtime", err)
	}
	return nil
}

// applyLimitInternal re-arms the instruction count hook; lua_sethook resets the counter
func (e *LuaEngine) applyLimitInternal() {
	if e.instructionLimit > 0 {
		e.state.SetExecutionLimit(e.instructionLimit)
	}
}

// HasFunction reports whether a global function with the given name is defined
func (e *LuaEngine) HasFunction(name string) bool {
	res := e.DoWithState(func(L *lua.State) interface{} {
		L.GetGlobal(name)
		defer L.Pop(1)
		return L.IsFunction(-1)
	})
	ok, _ := res.(bool)
	return ok
}

// CallBytes calls the global function name with data as a 1-based table of byte values and its length.
// The single result is converted to a string: strings as-is, numbers in shortest form, booleans as true/false.
func (e *LuaEngine) CallBytes(name string, data []byte) (string, error) {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	L := e.state
	if L == nil {
		return "", &LuaError{Type: "api", Message: "engine closed", Source: e.name}
	}

	L.GetGlobal(name)
	if !L.IsFunction(-1) {
		L.Pop(1)
		return "", &LuaError{Type: "api", Message: fmt.Sprintf("function %s not found or not a function", name), Source: e.name}
	}

	L.CreateTable(len(data), 0)
	for i, b := range data {
		L.PushInteger(int64(i + 1))
		L.PushInteger(int64(b))
		L.SetTable(-3)
	}
	L.PushInteger(int64(len(data)))

	e.applyLimitInternal()
	if err := L.Call(2, 1); err != nil {
		return "", e.parseLuaError("runtime", err)
	}
	defer L.Pop(1)

	switch L.Type(-1) {
	case lua.LUA_TSTRING:
		return L.ToString(-1), nil
	case lua.LUA_TNUMBER:
		return formatNumber(L.ToNumber(-1)), nil
	case lua.LUA_TBOOLEAN:
		if L.ToBoolean(-1) {
			return "true", nil
		}
		return "false", nil
	case lua.LUA_TNIL:
		return "", &LuaError{Type: "runtime", Message: fmt.Sprintf("%s returned nil", name), Source: e.name}
	default:
		return "", &LuaError{Type: "runtime", Message: fmt.Sprintf("%s returned %s, want string or number", name, L.Typename(int(L.Type(-1)))), Source: e.name}
	}
}

func (e *LuaEngine) resetInternal() {
	if e.state != nil {
		e.state.Close()
	}

	e.state = lua.NewState()
	e.state.OpenLibs()

	e.registerPrintCaptureInternal()
	e.sandboxInternal()
}

// Reset recreates the Lua state
func (e *LuaEngine) Reset() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	e.resetInternal()
}

// Close cleans up the engine
func (e *LuaEngine) Close() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}
