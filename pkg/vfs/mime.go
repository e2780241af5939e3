package vfs

import (
	"mime"
	"path"
	"strings"
)

// Extensions the platform mime database commonly misses.
var extraMIMETypes = map[string]string{
	".md":      "text/markdown",
	".yaml":    "application/yaml",
	".yml":     "application/yaml",
	".toml":    "application/toml",
	".log":     "text/plain",
	".parquet": "application/vnd.apache.parquet",
	".gz":      "application/gzip",
	".7z":      "application/x-7z-compressed",
	".heic":    "image/heic",
}

// MIMEType derives a content type from the filename extension. Unknown
// extensions yield the empty string, not a fallback octet-stream: absence
// of a type is part of the entry contract.
func MIMEType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extraMIMETypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		// strip any charset parameter added by the platform database
		if idx := strings.Index(t, ";"); idx >= 0 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}
	return ""
}
