// Package storage provides the on-disk media library for the gallery crawler.
//
// The storage package handles:
//   - Creating and managing the output directory
//   - Saving media files with atomic write operations
//   - Content checksums (xxhash) recorded per saved file
//   - Detecting files already present from earlier runs
//
// The Manager type is the primary interface for storage operations. It keeps
// an in-memory index of stored files for fast duplicate detection and writes
// through a temporary file plus rename so interrupted downloads never leave
// a corrupt file in the library.
//
// Usage:
//
//	manager, err := storage.NewManager("output_directory")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !manager.IsStored("sunset-42.png") {
//	    saved, err := manager.SaveMedia(mediaReader, "sunset-42.png")
//	    if err != nil {
//	        log.Printf("Failed to save media: %v", err)
//	    }
//	    fmt.Println(saved.Checksum)
//	}
package storage
