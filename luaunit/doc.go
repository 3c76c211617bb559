// Package luaunit loads logic units scripted in Lua.
//
// A script is a chunk returning a table that declares the unit:
//
//	return {
//	    name       = "ping",
//	    type       = "PING",          -- string, array of strings, or "*"
//	    cancelType = "PING_CANCEL",
//	    debounceMs = 0,
//	    throttleMs = 0,
//	    latest     = false,
//	    successType = "PONG",
//	    failType    = "PING_ERROR",
//
//	    validate = function(action, allow, reject)
//	        allow(action)
//	    end,
//
//	    process = function(action, dispatch, done)
//	        dispatch({ type = "PONG", payload = action.payload })
//	        done()
//	    end,
//	}
//
// gopher-lua's LState is not goroutine-safe, so each script unit owns a
// state driven by a single executor goroutine; validate and process
// invocations are marshalled onto it. Scripted process stages always
// run in multiple-dispatch mode: dispatch may be called any number of
// times and done ends the context.
package luaunit
