// Package cast is the client for the external cast bridge, the service that
// discovers Chromecast devices on the local network and drives playback.
//
// Bridge API (JSON):
//
//	GET  {base}/devices              -> {"devices": [Device, ...]}
//	POST {base}/devices/{id}/play    Media -> bridge-defined status object
//
// The server asks a device to play its own stream URL; the device then
// fetches the encoded audio from GET /api/v1/streams/{id}. With no bridge URL
// configured every call returns ErrNotConfigured.
package cast
