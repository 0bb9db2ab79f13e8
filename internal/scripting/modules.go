package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// registerModules defines the bot global table in L:
//
//	bot.log(msg)          logs msg at info level
//	bot.clamp(v, lo, hi)  returns v limited to [lo, hi]
func registerModules(L *lua.LState, logger *zap.Logger) {
	bot := L.NewTable()
	L.SetField(bot, "log", L.NewFunction(func(L *lua.LState) int {
		logger.Info("script", zap.String("msg", L.CheckString(1)))
		return 0
	}))
	L.SetField(bot, "clamp", L.NewFunction(func(L *lua.LState) int {
		v, lo, hi := L.CheckNumber(1), L.CheckNumber(2), L.CheckNumber(3)
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		L.Push(v)
		return 1
	}))
	L.SetGlobal("bot", bot)
}
