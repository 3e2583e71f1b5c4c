// Package bench compares ldbx against go.etcd.io/bbolt on the same
// sequential-write workload, in the spirit of the teacher's own
// bbolt/mdbx-go comparison benchmarks, and measures ldbx point reads on
// their own (there is no bbolt read benchmark).
package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/elenavoss/ldbx"
	bolt "go.etcd.io/bbolt"
)

func sampleKV(n int) (keys, vals [][]byte) {
	keys = make([][]byte, n)
	vals = make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = []byte(fmt.Sprintf("key-%08d", i))
		vals[i] = []byte(fmt.Sprintf("value-%08d", i))
	}
	return keys, vals
}

func BenchmarkLdbxSequentialWrite(b *testing.B) {
	dir := b.TempDir()
	keys, vals := sampleKV(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := filepath.Join(dir, fmt.Sprintf("ldbx-%d.db", i))
		env, err := ldbx.Open(path, ldbx.Options{})
		if err != nil {
			b.Fatal(err)
		}
		w, err := env.BeginWrite()
		if err != nil {
			b.Fatal(err)
		}
		for j := range keys {
			if err := w.Put(keys[j], vals[j]); err != nil {
				b.Fatal(err)
			}
		}
		if err := w.Commit(); err != nil {
			b.Fatal(err)
		}
		env.Close()
		os.Remove(path)
	}
}

func BenchmarkBboltSequentialWrite(b *testing.B) {
	dir := b.TempDir()
	keys, vals := sampleKV(1000)
	bucketName := []byte("bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := filepath.Join(dir, fmt.Sprintf("bolt-%d.db", i))
		db, err := bolt.Open(path, 0o600, nil)
		if err != nil {
			b.Fatal(err)
		}
		err = db.Update(func(tx *bolt.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists(bucketName)
			if err != nil {
				return err
			}
			for j := range keys {
				if err := bucket.Put(keys[j], vals[j]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
		db.Close()
		os.Remove(path)
	}
}

func BenchmarkLdbxGet(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "ldbx-get.db")
	env, err := ldbx.Open(path, ldbx.Options{})
	if err != nil {
		b.Fatal(err)
	}
	defer env.Close()

	keys, vals := sampleKV(1000)
	w, err := env.BeginWrite()
	if err != nil {
		b.Fatal(err)
	}
	for i := range keys {
		if err := w.Put(keys[i], vals[i]); err != nil {
			b.Fatal(err)
		}
	}
	if err := w.Commit(); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, err := env.BeginRead()
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := r.Get(keys[i%len(keys)]); err != nil {
			b.Fatal(err)
		}
		r.Close()
	}
}
