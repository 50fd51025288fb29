// Package xjose provides JSON Object Signing and Encryption (JOSE) primitives:
// JWK and JWK Sets, JWA algorithms, JWS and JWE builders, loaders and
// serializers, and nested JWT support.
//
// Every pipeline is constructed with explicit algorithm allow-lists,
// there is no process-wide default registry.
package xjose
