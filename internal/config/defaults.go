package config

// DefaultMaxUploadBytes caps request bodies on the upload and extract endpoints.
const DefaultMaxUploadBytes = 32 << 20

// DefaultMaxEntryBytes caps how large one package part may decompress to.
const DefaultMaxEntryBytes = 64 << 20

// DefaultWatchExtensions are the package types the extractor understands.
var DefaultWatchExtensions = []string{".docx", ".xlsx", ".pptx"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Extract.MaxEntryBytes <= 0 {
		cfg.Extract.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/ooxtext/data/db/library.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/ooxtext/data/indices/bleve"
	}
	if cfg.Export.SidecarExtension == "" {
		cfg.Export.SidecarExtension = ".txt"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), DefaultWatchExtensions...)
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
