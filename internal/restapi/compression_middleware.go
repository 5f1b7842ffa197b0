package restapi

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

type CompressionConfig struct {
	// MinSize is the smallest response body in bytes that gets compressed.
	MinSize int
	// Level is the gzip level, 1 to 9.
	Level int
}

func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   6,
	}
}

// NewCompressionMiddleware gzips responses for clients that accept it. An
// invalid config falls back to the gzhttp defaults.
func NewCompressionMiddleware(config CompressionConfig) func(http.Handler) http.Handler {
	wrapper, err := gzhttp.NewWrapper(
		gzhttp.MinSize(config.MinSize),
		gzhttp.CompressionLevel(config.Level),
	)
	return func(next http.Handler) http.Handler {
		if err != nil {
			return gzhttp.GzipHandler(next)
		}
		return wrapper(next)
	}
}
