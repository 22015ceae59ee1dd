/*
Package apicontext holds the credentials and endpoint configuration needed to call a Flickr-compatible REST API, and the request signing and encoding helpers built on top of them.

A [Context] is pure data plus helpers: it performs no network I/O. It is created with an API key and an optional shared secret; an auth token can be attached later with [Context.SetAuthToken] once the user has completed the web login flow (see [Context.LoginURL]).

Signing follows the API's scheme: the shared secret is concatenated with every parameter key immediately followed by its value, keys in lexicographic order, and the MD5 digest of that string is rendered as lowercase hex. [Context.Sign] is a deterministic function of the parameter set, so insertion order never matters.

Parameters are passed as [Params] (a map of string keys to loosely-typed values). Slices are joined with commas before signing or encoding, so a []string and the same elements pre-joined into a single string produce identical requests.

A Context is safe to share between many concurrent invocations, as long as callers do not mutate it (eg, with SetAuthToken) while a call is being built. This single-writer rule is documented, not enforced.
*/
package apicontext
