package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cargomesh/mfgbatch/internal/artifact"
	"github.com/cargomesh/mfgbatch/internal/logger"
)

type ArtifactCmd struct {
	Inspect ArtifactInspectCmd `cmd:"" help:"Print the manifest and fingerprint of an archive"`
}

type ArtifactInspectCmd struct {
	Path string `arg:"" help:"path to the .tar.zst registration archive"`
}

func (c *ArtifactInspectCmd) Run(_ context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	archive, err := artifact.UnpackFile(c.Path)
	if err != nil {
		return err
	}

	m := archive.Manifest
	fmt.Printf("name:        %s\n", m.Name)
	fmt.Printf("version:     %s\n", m.Version)
	fmt.Printf("inputs:      %s\n", strings.Join(m.Inputs, ", "))
	fmt.Printf("outputs:     %s\n", strings.Join(m.Outputs, ", "))
	fmt.Printf("wasm:        %s\n", m.Wasm)
	fmt.Printf("checksum:    %s\n", m.Checksum)
	fmt.Printf("fingerprint: %s\n", archive.Fingerprint())
	fmt.Printf("size:        %d bytes\n", len(archive.Contract))

	return nil
}
