// Package server is the session dispatch core of the web UI runtime.
//
// Every component type is registered with a mount path and a factory. For
// each mount path the server exposes an HTTP view, a redirect from the bare
// path and a WebSocket endpoint at {path}/@ws/. Clients send JSON frames that
// carry a session id and a per-tab uuid; together they form the session key.
//
// # Sessions
//
// The Store maps session keys to entries. An entry owns one Socket, shared by
// all components of the session, and at most one Component per type.
// Components are created lazily by the first message addressed to them:
//
//	store := server.NewStore(registry, server.DefaultSessionConfig(), logger)
//	entry, socket, comp, err := store.GetOrCreate("abc_u1", "app.Dashboard")
//
// Concurrent first messages for the same session build exactly one socket and
// one component per type.
//
// # Dispatch
//
// The Router decodes frames and dispatches them by type:
//
//	initialize  bind the connection, acknowledge, flush buffered frames
//	activate    mark the component active without re-running bootstrap
//	close       tear the session down
//	other       Component.HandleMessage
//
// Messages for one session are handled one at a time; sessions run in
// parallel. Errors and panics are recovered, logged with a correlation id,
// and never close the connection. ActiveComponent reports the component
// handling the current message or view request.
//
// # Connection loss
//
// When a connection closes its sockets are detached but the sessions stay in
// the store, buffering outbound frames, until the client reconnects, the
// resume window elapses (see Store.Run) or the session is closed explicitly.
package server
