package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// registerModules installs the engine table:
//
//	engine.log(msg)        -- info-level log line tagged with the script source
//	engine.roll(expr)      -- rolls a dice expression, returns the total or nil
func (m *Manager) registerModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", L.NewFunction(func(L *lua.LState) int {
		m.logger.Info("script", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	L.SetField(engine, "roll", L.NewFunction(func(L *lua.LState) int {
		res, err := m.roller.RollExpr(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(res.Total()))
		return 1
	}))
	L.SetGlobal("engine", engine)
}

// creatureTable converts a snapshot into a read-only-by-convention Lua table.
func creatureTable(L *lua.LState, c CreatureInfo) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LString(c.ID))
	L.SetField(t, "name", lua.LString(c.Name))
	L.SetField(t, "environment", lua.LString(c.EnvironmentID))
	L.SetField(t, "generation", lua.LNumber(c.Generation))
	L.SetField(t, "health", lua.LNumber(c.Health))
	L.SetField(t, "mutations", lua.LNumber(c.MutationCount))
	L.SetField(t, "charges", lua.LNumber(c.AdaptiveCharges))
	L.SetField(t, "age", lua.LNumber(c.Age))
	traits := L.NewTable()
	for _, tr := range c.Traits {
		traits.Append(lua.LString(tr))
	}
	L.SetField(t, "traits", traits)
	return t
}
