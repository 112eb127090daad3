// Package consul resolves agent connection settings and bootstraps key/value
// clients. Settings come from an explicit environment snapshot (see
// ResolveConfig) so nothing below this package reads process state:
//
//	CONSUL_ADDR, CONSUL_HTTP_ADDR        agent address
//	CONSUL_SCHEME, CONSUL_HOST, CONSUL_PORT
//	                                     used when no address is set
//	                                     (http, localhost, 8500)
//	CONSUL_TOKEN, CONSUL_HTTP_TOKEN      ACL token; falls back to $HOME/.consul-token
//	CONSUL_HTTP_TIMEOUT                  request timeout in seconds (default 5)
//	CONSUL_HTTP_AUTH                     basic auth as "user:password"
//	CONSUL_NAMESPACE                     namespace header
//	CONSUL_RUNTIME_MODE                  "http", "mock" or "auto"
//	CONSUL_MOCK_KV_SEED                  JSON seed file for the in-memory store
//
// In mock mode the returned client is backed by an in-memory store that
// implements the same wire semantics as the agent, which keeps local
// development and tests free of a running Consul.
package consul
