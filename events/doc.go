// Package events defines the messages exchanged between a remote client and the
// execution server.
//
// Clients send Execute and Cancel. The server answers with one Session when the
// connection opens, then Progress for every completed template of a request, and
// finally a Report or an Error. Every message carries a "type" discriminator and
// is encoded with hand written gjson/sjson codecs; FromJSON picks the concrete type.
//
//	data, _ := events.ToJSON(events.Cancel{RequestID: id})
//	ev, err := events.FromJSON(data)
//
// A Hook receives the server side events; Dispatch routes an Event to it.
package events
