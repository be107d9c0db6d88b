package lib

/* This file contains persistence module interfaces that are used throughout the app */

// StoreI defines the interface for the node's key value database
type StoreI interface {
	RWStoreI                                // reading and writing
	Batch(fn func(w WStoreI) ErrorI) ErrorI // apply a group of writes atomically
	Flush() ErrorI                          // force buffered writes to durable storage
	Snapshot(height int64) ErrorI           // take an incremental backup tagged with height
	Close() ErrorI                          // gracefully stop the database
}

// RWStoreI defines the Read/Write interface for basic db CRUD operations
type RWStoreI interface {
	RStoreI
	WStoreI
}

// WStoreI defines an interface for basic write operations
type WStoreI interface {
	Set(key, value []byte) ErrorI // set value bytes referenced by key bytes
	Delete(key []byte) ErrorI     // delete the key value pair
}

// RStoreI defines an interface for basic read operations
type RStoreI interface {
	Get(key []byte) ([]byte, ErrorI)               // access value bytes using key bytes
	Iterator(prefix []byte) (IteratorI, ErrorI)    // iterate through the data one KV pair at a time in lexicographical order
	RevIterator(prefix []byte) (IteratorI, ErrorI) // iterate through the date on KV pair at a time in reverse lexicographical order
}

// IteratorI defines an interface for iterating over key-value pairs in a data store
type IteratorI interface {
	Valid() bool   // if the item the iterator is pointing at is valid
	Next()         // move to next item
	Key() []byte   // retrieve key
	Value() []byte // retrieve value
	Close()        // close the iterator when done, ensuring proper resource management
}
