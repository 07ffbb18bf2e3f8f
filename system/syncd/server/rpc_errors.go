package server

import (
	"encoding/json"

	"go.lsp.dev/jsonrpc2"

	"github.com/signadot/docsync/system/syncd/api"
)

// JSON-RPC error codes for engine errors. The api.Error itself travels in
// the error's data.
const (
	CodeEngine        jsonrpc2.Code = -32000
	CodeUnknownAnchor jsonrpc2.Code = -32001
	CodeTypeMismatch  jsonrpc2.Code = -32002
	CodeNotFound      jsonrpc2.Code = -32003
	CodeStreamClosed  jsonrpc2.Code = -32004
)

func rpcCode(code string) jsonrpc2.Code {
	switch code {
	case api.ErrCodeUnknownAnchor:
		return CodeUnknownAnchor
	case api.ErrCodeTypeMismatch:
		return CodeTypeMismatch
	case api.ErrCodeNotFound:
		return CodeNotFound
	case api.ErrCodeStreamClosed:
		return CodeStreamClosed
	default:
		return CodeEngine
	}
}

// toRPCError converts an engine error to a JSON-RPC error.
func toRPCError(err error) *jsonrpc2.Error {
	e := api.AsError(err)
	res := jsonrpc2.NewError(rpcCode(e.Code), err.Error())
	if d, merr := json.Marshal(e); merr == nil {
		raw := json.RawMessage(d)
		res.Data = &raw
	}
	return res
}
