package mediacore

import "log"

var pkgLogger Logger = log.Default()

// Logger is the minimal logging seam the package writes diagnostics through.
// Anything satisfying it (including *log.Logger) can be installed with
// SetLogger; the zero value defaults to the standard library logger.
type Logger interface {
	Printf(format string, v ...any)
}

// SetLogger replaces the package-level logger used for warnings emitted by
// open() (e.g. multiple video/audio streams) and non-fatal decode errors.
func SetLogger(logger Logger) {
	pkgLogger = logger
}
