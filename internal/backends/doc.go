// Package backends defines the [Backend] capability interface and implements it
// for GOG (gogdl), Epic (legendary) and Amazon (nile).
//
// # Capability Interface
//
// Every store exposes the same operations. Callers select a variant by the
// identity's [models.Backend] tag through a [Set] and never depend on the
// concrete type. Each variant asserts at compile time that it implements the
// full interface.
//
// # Operation Flow
//
// Install, update, repair, import and move share one flow:
//  1. check credentials and connectivity, failing fast with an error outcome
//  2. build the downloader invocation from the request
//  3. run it under the caller's context, feeding output to a progress parser
//  4. a cancelled context yields abort; a failed process yields error and
//     leaves the registry untouched
//  5. fetch post-operation metadata, write the registry entry and run
//     platform post-install steps best-effort
//
// Best-effort steps (post-install scripts, DLC removal, uninstallers, file
// deletion) are logged at warn level and never change the outcome.
//
// # Metadata
//
// Downloader `info` output is JSON read with gjson. Results are cached per
// backend in a TTL cache (namespace gameinfo.<backend>).
package backends
