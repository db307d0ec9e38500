// Package ws implements the gateway's WebSocket endpoint.
//
// Each accepted connection becomes a session that processes control frames
// and receives topic broadcasts from the bus:
//
//	client → server:  {"type":"subscribe","topics":["utterance","emotion"]}
//	                  {"type":"unsubscribe","topics":["emotion"]}
//	                  {"type":"ping"}
//	server → client:  {"type":"subscribed","topics":[...]}
//	                  {"type":"pong"}
//	                  {"type":"<topic>","data":{...}}
//
// A subscribe frame replaces the session's whole subscription set; topics
// outside the registry are skipped silently and the confirmation lists what
// was actually applied. Malformed frames are ignored — a bad frame never
// drops the socket. Cleanup of every table entry is guaranteed on exit,
// whatever ended the session.
//
// The upgrader accepts all origins; restrict at the reverse proxy.
package ws
