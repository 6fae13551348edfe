// Command readfile prints a file by dispatching READ_FILE through a root
// System that delegates to File and Streams systems.
//
//	readfile cmd/readfile/testdata/test.txt
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	path := "testdata/test.txt"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	root := newRootSystem(logger)

	rc, err := root.Handle(context.Background(), ActionReadFile, ReadFilePayload{FilePath: path})
	if err != nil {
		logger.Error("read failed", "path", path, "error", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}

	fmt.Print(rc.Body())
}
