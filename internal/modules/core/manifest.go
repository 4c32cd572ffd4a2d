package core

import "strconv"

// Manifest describes a module the way a subgraph manifest does
type Manifest struct {
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description,omitempty"`
	Network     string                 `yaml:"network,omitempty"`
	DataSources []DataSource           `yaml:"dataSources"`
	Templates   []DataSource           `yaml:"templates,omitempty"`
	Context     map[string]interface{} `yaml:"context,omitempty"` // Module-specific context
}

// DataSource defines a contract or set of contracts to watch
type DataSource struct {
	Kind    string            `yaml:"kind"` // "ethereum/contract"
	Name    string            `yaml:"name"`
	Network string            `yaml:"network"` // "bsc"
	Source  DataSourceSource  `yaml:"source"`
	Mapping DataSourceMapping `yaml:"mapping"`
}

// DataSourceSource defines the contract source information
type DataSourceSource struct {
	Address    *string `yaml:"address,omitempty"` // empty for templates
	ABI        string  `yaml:"abi"`
	StartBlock *uint64 `yaml:"startBlock,omitempty"`
}

// DataSourceMapping lists the entities a data source writes and the events it handles
type DataSourceMapping struct {
	Kind          string         `yaml:"kind"` // "ethereum/events"
	APIVersion    string         `yaml:"apiVersion,omitempty"`
	Entities      []string       `yaml:"entities"`
	EventHandlers []EventHandler `yaml:"eventHandlers"`
}

// EventHandler binds an event signature to a handler name
type EventHandler struct {
	Event   string `yaml:"event"` // e.g. "Sync(uint112,uint112)"
	Handler string `yaml:"handler"`
}

// ValidateManifest validates a manifest structure
func (m *Manifest) ValidateManifest() error {
	if m.Name == "" {
		return ErrInvalidManifest{Field: "name", Reason: "name is required"}
	}

	if m.Version == "" {
		return ErrInvalidManifest{Field: "version", Reason: "version is required"}
	}

	if len(m.DataSources) == 0 {
		return ErrInvalidManifest{Field: "dataSources", Reason: "at least one data source is required"}
	}

	for i, ds := range m.DataSources {
		if err := ds.validate(false); err != nil {
			return ErrInvalidManifest{Field: "dataSources[" + strconv.Itoa(i) + "]", Reason: err.Error()}
		}
	}

	for i, ds := range m.Templates {
		if err := ds.validate(true); err != nil {
			return ErrInvalidManifest{Field: "templates[" + strconv.Itoa(i) + "]", Reason: err.Error()}
		}
	}

	return nil
}

func (ds *DataSource) validate(template bool) error {
	if ds.Kind == "" {
		return ErrInvalidManifest{Field: "kind", Reason: "kind is required"}
	}

	if ds.Name == "" {
		return ErrInvalidManifest{Field: "name", Reason: "name is required"}
	}

	if !template && (ds.Source.Address == nil || *ds.Source.Address == "") {
		return ErrInvalidManifest{Field: "source.address", Reason: "address is required"}
	}

	if ds.Source.ABI == "" {
		return ErrInvalidManifest{Field: "source.abi", Reason: "ABI is required"}
	}

	if len(ds.Mapping.EventHandlers) == 0 {
		return ErrInvalidManifest{Field: "mapping.eventHandlers", Reason: "at least one event handler is required"}
	}

	return nil
}

// ErrInvalidManifest is returned when a manifest is invalid
type ErrInvalidManifest struct {
	Field  string
	Reason string
}

func (e ErrInvalidManifest) Error() string {
	return "invalid manifest field " + e.Field + ": " + e.Reason
}
