// Package endpoint implements the named, directional attachment points
// services use to exchange payloads, and the connections between them.
//
// An Endpoint has a direction (in, out or both) and an ordered set of
// connections to other endpoints. Connections are references only: the
// owning service owns its endpoints, never the endpoints it connects to.
//
// # Traffic
//
// Receive on an in endpoint runs the interceptor chain and then the handler.
// Receive (or Send) on an out endpoint runs the chain and forwards to the
// connections: every connection by default, or only the first real one when
// the endpoint is Single. A closed endpoint rejects traffic with
// errors.ErrEndpointClosed.
//
// # Placeholders
//
// While a connection target cannot be resolved yet, the resolution context
// connects a placeholder (NewPlaceholder) so traffic is absorbed instead of
// failing with errors.ErrNoConnection. Placeholders never count as real
// connections and are dropped with RemovePlaceholders once the real peer
// is connected.
//
// # Target expressions
//
// Connection targets are written as
//
//	service(<name>).<endpoint>[<tag>]
//	<endpoint>[<tag>]
//
// The second form names an endpoint on the same service. The bracketed tag is
// optional and ignored by resolution.
package endpoint
