package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"archie/pkg"
)

// Actions
const (
	ActionRead         = "READ"
	ActionReadAsString = "READ_AS_STRING"
	ActionReadFile     = "READ_FILE"
)

// Module names the root system registers its collaborators under.
const (
	ModuleFiles   = "files"
	ModuleStreams = "streams"
)

type ReadPayload struct {
	Path string
}

type ReadAsStringPayload struct {
	Stream io.Reader
}

type ReadFilePayload struct {
	FilePath string
}

// newFileSystem opens files. The body of READ is an open *os.File that the
// caller must close.
func newFileSystem(logger *slog.Logger) *pkg.System {
	sys := pkg.New(pkg.WithName("File"), pkg.WithLogger(logger))

	sys.When(ActionRead).
		Validate(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) (bool, error) {
			p, ok := action.Payload.(ReadPayload)
			return ok && p.Path != "", nil
		}).
		Do(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
			f, err := os.Open(action.Payload.(ReadPayload).Path)
			if err != nil {
				return err
			}
			rc.Set(pkg.BodyKey, f)
			return nil
		})

	return sys
}

// newStreamSystem drains readers into strings.
func newStreamSystem(logger *slog.Logger) *pkg.System {
	sys := pkg.New(pkg.WithName("Streams"), pkg.WithLogger(logger))

	sys.When(ActionReadAsString).
		Validate(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) (bool, error) {
			p, ok := action.Payload.(ReadAsStringPayload)
			return ok && p.Stream != nil, nil
		}).
		Do(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
			data, err := io.ReadAll(action.Payload.(ReadAsStringPayload).Stream)
			if err != nil {
				return err
			}
			rc.Set(pkg.BodyKey, string(data))
			return nil
		})

	return sys
}

// newRootSystem reads a whole file by chaining the File and Streams
// systems it finds in its module registry.
func newRootSystem(logger *slog.Logger) *pkg.System {
	sys := pkg.New(pkg.WithName("Read File Demo"), pkg.WithLogger(logger)).
		Register(ModuleFiles, newFileSystem(logger)).
		Register(ModuleStreams, newStreamSystem(logger))

	sys.When(ActionReadFile).
		Validate(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) (bool, error) {
			_, ok := action.Payload.(ReadFilePayload)
			return ok, nil
		}).
		Do(func(ctx context.Context, rc *pkg.RequestContext, action pkg.Action) error {
			files, ok := pkg.ModuleAs[*pkg.System](sys, ModuleFiles)
			if !ok {
				return fmt.Errorf("module %q not registered", ModuleFiles)
			}
			streams, ok := pkg.ModuleAs[*pkg.System](sys, ModuleStreams)
			if !ok {
				return fmt.Errorf("module %q not registered", ModuleStreams)
			}

			opened, err := files.Handle(ctx, ActionRead, ReadPayload{Path: action.Payload.(ReadFilePayload).FilePath})
			if err != nil {
				return err
			}
			f, ok := opened.Body().(*os.File)
			if !ok {
				return fmt.Errorf("%s returned no file", ActionRead)
			}
			defer f.Close()

			read, err := streams.Handle(ctx, ActionReadAsString, ReadAsStringPayload{Stream: f})
			if err != nil {
				return err
			}
			rc.Set(pkg.BodyKey, read.Body())
			return nil
		})

	return sys
}
