// Package storage declares the capability interface for the persisted
// key/value store backing the chain. Callers depend only on this interface so
// durable backends can be plugged in without touching the chain packages.
package storage

// KVStore represents the behavior required to be implemented by any package
// providing support for persisting chain state.
type KVStore interface {
	Get(key []byte) (value []byte, exists bool)
	Insert(key []byte, value []byte) (old []byte, existed bool)
	Remove(key []byte) (old []byte, existed bool)
}
