// Package auth implements API-key authentication for the HTTP API and the
// gRPC ingestion service.
//
// APIKey is the only Authorizer. With Mode "apikey" and a non-empty Key,
// requests must present the key in Header (HTTP header or gRPC metadata).
// HTTP requests may use the api_key query parameter instead, because browser
// websocket clients cannot set headers. Any other mode, or an empty key,
// allows everything, which is meant for local development.
//
// Middleware answers unauthorized HTTP requests with 401 and a JSON error
// body. The gRPC interceptors return codes.Unauthenticated.
package auth
