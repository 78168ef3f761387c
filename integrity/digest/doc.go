// Package digest computes 160-bit SHA-1 content digests of byte streams.
// Streams are folded through the hash in bounded chunks; the chunk size is a
// performance knob only and never changes the result. Digest is a value type
// whose Bytes method returns a fresh 20-byte copy, which is the only
// serialization the sidecar store relies on.
package digest
