package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/planeta/internal/game/dice"
)

// MutationHook is the Lua global consulted for mutation candidates.
const MutationHook = "mutation_candidates"

// CreatureInfo is the snapshot of a creature handed to hooks.
type CreatureInfo struct {
	ID              string
	Name            string
	EnvironmentID   string
	Generation      int
	Health          float64
	MutationCount   int
	AdaptiveCharges int
	Age             int
	Traits          []string
}

// Manager owns one sandboxed LState holding every loaded script.
//
// LState is single-threaded; mu serialises every load and call.
type Manager struct {
	mu        sync.Mutex
	state     *lua.LState
	instLimit int
	roller    *dice.Roller
	logger    *zap.Logger
}

// NewManager creates a Manager with an empty VM.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: instLimit <= 0 selects DefaultInstructionLimit.
func NewManager(roller *dice.Roller, logger *zap.Logger, instLimit int) *Manager {
	m := &Manager{instLimit: instLimit, roller: roller, logger: logger}
	m.state = NewSandboxedState()
	m.registerModules(m.state)
	return m
}

// Close releases the VM.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Close()
}

// LoadDir executes every *.lua file in dir in lexicographic order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the number of files loaded or the first load error.
func (m *Manager) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("scripting: reading %q: %w", path, err)
		}
		if err := m.LoadString(string(src)); err != nil {
			return 0, fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}
	return len(files), nil
}

// LoadString executes src in the VM under the opcode budget.
func (m *Manager) LoadString(src string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return withBudget(m.state, m.instLimit, func() error {
		return m.state.DoString(src)
	})
}

// HasHook reports whether the named global function is defined.
func (m *Manager) HasHook(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetGlobal(name).Type() == lua.LTFunction
}

// MutationCandidates asks the mutation_candidates hook for the trait pool to
// use for c in envID. ok is false when the hook is undefined, fails, or
// returns something other than a table; the caller then falls back to the
// environment's own pool. Runtime errors are logged, never propagated.
func (m *Manager) MutationCandidates(envID string, c CreatureInfo) (candidates []string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.state.GetGlobal(MutationHook)
	if fn.Type() != lua.LTFunction {
		return nil, false
	}

	err := withBudget(m.state, m.instLimit, func() error {
		return m.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
			lua.LString(envID), creatureTable(m.state, c))
	})
	if err != nil {
		m.logger.Warn("scripting: hook failed",
			zap.String("hook", MutationHook),
			zap.String("environment", envID),
			zap.String("creature", c.ID),
			zap.Error(err),
		)
		return nil, false
	}

	ret := m.state.Get(-1)
	m.state.Pop(1)
	tbl, isTable := ret.(*lua.LTable)
	if !isTable {
		return nil, false
	}
	tbl.ForEach(func(_, v lua.LValue) {
		if s, isStr := v.(lua.LString); isStr {
			candidates = append(candidates, string(s))
		}
	})
	return candidates, true
}
