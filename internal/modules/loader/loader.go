package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/UniTradeApp/pancake-subgraph/internal/modules/core"
)

const defaultNetwork = "bsc"

// ManifestLoader handles loading and parsing module manifests
type ManifestLoader struct {
	logger zerolog.Logger
}

// NewManifestLoader creates a new manifest loader
func NewManifestLoader(logger zerolog.Logger) *ManifestLoader {
	return &ManifestLoader{
		logger: logger.With().Str("component", "manifest_loader").Logger(),
	}
}

// LoadFromFile loads a single manifest from a file
func (l *ManifestLoader) LoadFromFile(path string) (*core.Manifest, error) {
	l.logger.Debug().Str("path", path).Msg("Loading manifest from file")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file %s: %w", path, err)
	}

	return l.ParseManifest(data)
}

// LoadFromDirectory loads all manifests from a directory. Files that fail to
// parse are logged and skipped.
func (l *ManifestLoader) LoadFromDirectory(dir string) ([]*core.Manifest, error) {
	l.logger.Debug().Str("dir", dir).Msg("Loading manifests from directory")

	var manifests []*core.Manifest

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isManifestFile(d.Name()) {
			return nil
		}

		manifest, err := l.LoadFromFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load manifest, skipping")
			return nil
		}

		manifests = append(manifests, manifest)
		l.logger.Info().
			Str("name", manifest.Name).
			Str("version", manifest.Version).
			Str("path", path).
			Msg("Loaded manifest")

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}

	return manifests, nil
}

// ParseManifest parses a YAML manifest from bytes
func (l *ManifestLoader) ParseManifest(data []byte) (*core.Manifest, error) {
	var manifest core.Manifest

	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML manifest: %w", err)
	}

	l.setDefaults(&manifest)

	if err := manifest.ValidateManifest(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &manifest, nil
}

// setDefaults sets default values for manifest fields
func (l *ManifestLoader) setDefaults(manifest *core.Manifest) {
	if manifest.Network == "" {
		manifest.Network = defaultNetwork
	}

	apply := func(ds *core.DataSource) {
		if ds.Kind == "" {
			ds.Kind = "ethereum/contract"
		}
		if ds.Network == "" {
			ds.Network = manifest.Network
		}
		if ds.Mapping.Kind == "" {
			ds.Mapping.Kind = "ethereum/events"
		}
		if ds.Mapping.APIVersion == "" {
			ds.Mapping.APIVersion = "0.0.1"
		}
		if ds.Source.StartBlock == nil {
			startBlock := uint64(0)
			ds.Source.StartBlock = &startBlock
		}
		if ds.Source.Address != nil {
			addr := strings.ToLower(*ds.Source.Address)
			ds.Source.Address = &addr
		}
	}

	for i := range manifest.DataSources {
		apply(&manifest.DataSources[i])
	}
	for i := range manifest.Templates {
		apply(&manifest.Templates[i])
	}
}

// isManifestFile checks if a filename appears to be a manifest file
func isManifestFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}
