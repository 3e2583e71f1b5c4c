// Package ldbx is an embedded, single-file, transactional key-value
// storage engine. The on-disk representation is a set of fixed-size pages
// organized as a copy-on-write B+ tree, with atomic commits implemented by
// alternating writes to two meta pages. One concurrent writer and many
// concurrent readers are supported, each reader observing a point-in-time
// snapshot unaffected by later writes.
//
// Basic usage:
//
//	env, err := ldbx.Open("/path/to/db", ldbx.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	w, err := env.BeginWrite()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Put([]byte("key"), []byte("value")); err != nil {
//	    w.Abort()
//	    log.Fatal(err)
//	}
//	if err := w.Commit(); err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := env.BeginRead()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	val, ok, err := r.Get([]byte("key"))
package ldbx
