package storage

import (
	"path/filepath"
	"strings"

	"tasktrack/internal/taskerr"
	logx "tasktrack/pkg/logx"
)

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	const op = "storage.Open"
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "none" {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, taskerr.Validation(op, "storage path is required")
	}
	if driver == "" {
		driver = DriverFor(cfg.Path)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.Named("storage").With(logx.String("driver", driver))

	switch driver {
	case "csv":
		return openFile(cfg.Path, csvCodec{}, log)
	case "json":
		return openFile(cfg.Path, jsonCodec{}, log)
	case "yaml", "yml":
		return openFile(cfg.Path, yamlCodec{}, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, taskerr.Validation(op, "unknown storage driver %q", driver)
	}
}

// DriverFor guesses a driver from the file extension. Unknown extensions
// map to "csv".
func DriverFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	default:
		return "csv"
	}
}
