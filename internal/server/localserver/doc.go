// Package localserver implements jmapstore-server's local management
// socket: a Unix domain socket that accepts line-delimited JSON admin
// commands from jmapstore-cli.
//
// Every request/response is one JSON object terminated by a newline:
//
//	{"command":"system.status","args":{...}}
//	{"ok":true,"result":{...}}
//
// The socket bypasses the document store's own access control entirely;
// file system permissions on the socket path are the only gate, matching
// the rationale of a physical/local-access-only management interface.
package localserver
