// Package kv implements the key/value operation layer of the Consul HTTP API.
//
// Every call is modelled as an immutable Operation built by one of the Op*
// factories. The Client renders the operation into a request (method, path
// under /kv and query parameters), sends it through a Backend, maps the
// response status onto the error taxonomy and decodes the body according to
// the shape the operation's verb expects. Tree reads can additionally be
// folded into nested maps, which is what configuration loading builds on.
//
// Client itself never retries and never starts goroutines; AsyncClient adds
// the latter on top. Blocking reads are plain index/wait parameters and their
// timeout is the transport's.
package kv
