package main

import "fmt"

// libraryVersion is injected at build time via -ldflags, mirroring the
// boltutil.LibraryVersion.
var libraryVersion = "dev"

func versionString() string {
	return libraryVersion
}

func versionCommand() error {
	fmt.Printf("gristmuxd version %s\n", versionString())
	return nil
}
