package luart

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/danmuck/rpcgate/internal/plugins/treecodec"
	"github.com/danmuck/rpcgate/internal/protocol/value"
	"github.com/danmuck/rpcgate/internal/tools"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

func openHostAPI(L *lua.LState, opts Options) {
	json := L.NewTable()
	L.SetFuncs(json, map[string]lua.LGFunction{
		"parse":     jsonParse,
		"stringify": jsonStringify,
	})
	L.SetGlobal("JSON", json)

	if opts.AllowFileWrite {
		fs := L.NewTable()
		L.SetFuncs(fs, map[string]lua.LGFunction{
			"writeFragment": fsWriteFragment,
		})
		L.SetGlobal("fs", fs)
	}

	if opts.Exec != nil {
		sys := L.NewTable()
		L.SetFuncs(sys, map[string]lua.LGFunction{
			"exec": sysExec(opts.Exec),
		})
		L.SetGlobal("sys", sys)
	}
}

// JSON.parse(str) -> table; invalid input yields an empty table.
func jsonParse(L *lua.LState) int {
	n, err := value.ParseJSON([]byte(L.CheckString(1)))
	if err != nil {
		L.Push(L.NewTable())
		return 1
	}
	L.Push(treecodec.Decode(L, n))
	return 1
}

// JSON.stringify(v) -> string | nil, err
func jsonStringify(L *lua.LState) int {
	n, err := treecodec.Encode(L.CheckAny(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(string(value.DumpJSON(n))))
	return 1
}

// fs.writeFragment(path, offset, len, base64) -> bool
func fsWriteFragment(L *lua.LState) int {
	path := L.CheckString(1)
	offset := L.CheckInt64(2)
	length := L.CheckInt(3)
	data, err := base64.StdEncoding.DecodeString(L.CheckString(4))
	if err != nil || len(data) != length || offset < 0 {
		L.Push(lua.LFalse)
		return 1
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		log.Warn().Str("path", path).Err(err).Msg("luart.fs.writeFragment open")
		L.Push(lua.LFalse)
		return 1
	}
	defer f.Close()
	if _, err := f.WriteAt(data, offset); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("luart.fs.writeFragment write")
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LTrue)
	return 1
}

// sys.exec(name, ...) -> {stdout, stderr, code}
func sysExec(runner tools.CommandRunner) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		args := make([]string, 0, L.GetTop()-1)
		for i := 2; i <= L.GetTop(); i++ {
			args = append(args, L.CheckString(i))
		}
		res, err := runner.Run(context.Background(), name, args...)
		if err != nil {
			log.Debug().Str("cmd", name).Int("code", res.ExitCode).Err(err).Msg("luart.sys.exec")
		}
		out := L.NewTable()
		out.RawSetString("stdout", lua.LString(res.Stdout))
		out.RawSetString("stderr", lua.LString(res.Stderr))
		out.RawSetString("code", lua.LNumber(res.ExitCode))
		L.Push(out)
		return 1
	}
}
