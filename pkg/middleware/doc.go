// Package middleware carries the HTTP request through authentication
// and ownership resolution before any handler runs. AuthMiddleware
// turns a bearer token into an *auth.User on the context;
// OwnershipScopeMiddleware resolves the ownership scope every
// downstream query and policy check is confined to.
package middleware
