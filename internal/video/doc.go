// Package video defines the video catalog: metadata records, the
// upload/processing lifecycle (pending -> ready | failed), and the
// store-backed repository used by the HTTP layer.
package video
