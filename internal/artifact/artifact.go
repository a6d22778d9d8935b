// Package artifact packs and unpacks the contract registration archive: a
// zstd-compressed tar holding manifest.yaml and the compiled contract. The
// archive is what gets submitted to the on-chain registry; this package is
// the consumer side used by the processor's tooling.
package artifact

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	manifestName = "manifest.yaml"

	// maxContractSize caps how much contract payload is read from an
	// archive, guarding against decompression bombs.
	maxContractSize = 64 << 20
)

var (
	// ErrMissingManifest is returned when an archive has no manifest.yaml.
	ErrMissingManifest = errors.New("archive has no manifest.yaml")

	// ErrMissingContract is returned when an archive has no contract file.
	ErrMissingContract = errors.New("archive has no contract file")

	// ErrChecksumMismatch is returned when the contract bytes do not match
	// the manifest checksum.
	ErrChecksumMismatch = errors.New("contract checksum mismatch")
)

// Manifest describes the contract held in an archive.
type Manifest struct {
	Name     string   `yaml:"name"`
	Version  string   `yaml:"version"`
	Inputs   []string `yaml:"inputs"`
	Outputs  []string `yaml:"outputs"`
	Wasm     string   `yaml:"wasm"`
	Checksum string   `yaml:"checksum"`
}

// Archive is an unpacked registration archive.
type Archive struct {
	Manifest Manifest
	Contract []byte
}

// Fingerprint returns the base58-encoded SHA-256 of the contract bytes, the
// short form shown by registry tooling.
func (a *Archive) Fingerprint() string {
	sum := sha256.Sum256(a.Contract)
	return base58.Encode(sum[:])
}

// checksum is the hex CRC-64/NVME of the contract bytes.
func checksum(contract []byte) string {
	h := crc64nvme.New()
	h.Write(contract)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Pack writes the archive to w as a zstd-compressed tar. The manifest's
// checksum field is computed from the contract bytes.
func Pack(w io.Writer, manifest Manifest, contract []byte) error {
	manifest.Checksum = checksum(contract)

	manifestBytes, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}

	tw := tar.NewWriter(enc)

	now := time.Now()
	files := []struct {
		name string
		data []byte
	}{
		{manifestName, manifestBytes},
		{manifest.Wasm, contract},
	}
	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.name,
			Mode:    0o644,
			Size:    int64(len(f.data)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write tar header for %s: %w", f.name, err)
		}
		if _, err := tw.Write(f.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	log.Debug().
		Str("name", manifest.Name).
		Str("version", manifest.Version).
		Int("contract_bytes", len(contract)).
		Msg("archive packed")

	return nil
}

// Unpack reads a zstd-compressed tar archive, returning the manifest and
// contract after verifying the checksum.
func Unpack(r io.Reader) (*Archive, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	var manifest *Manifest
	contents := map[string][]byte{}

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxContractSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", hdr.Name, err)
		}

		if hdr.Name == manifestName {
			var m Manifest
			if err := yaml.Unmarshal(data, &m); err != nil {
				return nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			manifest = &m
			continue
		}
		contents[hdr.Name] = data
	}

	if manifest == nil {
		return nil, ErrMissingManifest
	}

	contract, ok := contents[manifest.Wasm]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingContract, manifest.Wasm)
	}

	if got := checksum(contract); got != manifest.Checksum {
		return nil, fmt.Errorf("%w: manifest %s, contract %s", ErrChecksumMismatch, manifest.Checksum, got)
	}

	return &Archive{Manifest: *manifest, Contract: contract}, nil
}

// UnpackFile opens and unpacks an archive from disk.
func UnpackFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	return Unpack(f)
}

// PackFile writes an archive to disk, removing the partial file on failure.
func PackFile(path string, manifest Manifest, contract []byte) error {
	var buf bytes.Buffer
	if err := Pack(&buf, manifest, contract); err != nil {
		return err
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}
