// Package api provides the HTTP REST API and WebSocket server for
// Clipstream Core.
//
// It exposes account and session management, the video catalog, the
// signed direct-upload handshake with the media CDN, and a real-time
// event feed for publish notifications.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
