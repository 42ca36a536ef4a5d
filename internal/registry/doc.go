// Package registry owns the durable list of enrolled fingerprint identities.
//
// The registry is an ordered sequence of UserRecord values backed one-to-one
// by a JSON document. It allocates ID_No values (smallest unused positive
// integer, recomputed on every allocation so deleted IDs are reused),
// deduplicates by roll, and rewrites the document after every mutation that
// changes membership.
//
// # Failure Model
//
// Storage problems never escape the package as fatal errors:
//   - A missing document loads as an empty registry.
//   - An unparsable document is moved aside to "<path>.corrupt-<unix>" and
//     the registry starts empty.
//   - A failed write is logged; the in-memory sequence stays authoritative
//     until the next successful persist.
//
// # Usage
//
//	reg := registry.New(registry.NewFileStore("users.json"), logger)
//	reg.Load()
//	rec, err := reg.Add("R100", time.Now())
//	if errors.Is(err, registry.ErrAlreadyExists) {
//	    // roll already enrolled, nothing written
//	}
//
// Thread Safety: All methods are safe for concurrent use.
package registry
