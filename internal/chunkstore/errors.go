package chunkstore

import "errors"

var (
	// ErrNotFound signals that no object (or no finalized object) exists for the id.
	ErrNotFound = errors.New("object not found")
	// ErrIncompleteWrite is returned by Finalize when the stored chunks do not add up
	// to the declared length. The object stays open.
	ErrIncompleteWrite = errors.New("incomplete write")
	// ErrAlreadyFinalized rejects writes or a second finalize on a sealed object.
	ErrAlreadyFinalized = errors.New("object already finalized")
	// ErrWriterOpened rejects a second writer for the same handle.
	ErrWriterOpened = errors.New("writer already opened for object")
	// ErrClosed is returned when writing to a closed writer.
	ErrClosed = errors.New("writer closed")
	// ErrCorrupt signals stored bytes that fail length or checksum verification.
	ErrCorrupt = errors.New("stored object corrupt")
)
