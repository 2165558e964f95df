// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Logging backend setup shared by the library. Packages obtain their own
// module loggers via logging.MustGetLogger; this package only configures
// the process-wide backend and level.

package logging

import (
	"io"
	"os"

	"github.com/op/go-logging"
)

var stderrFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.5s} %{module} ▶ %{message}`,
)

// Setup installs a stderr backend at the given level for all module loggers.
// Call once from the host application; tests may call it repeatedly.
func Setup(level logging.Level) {
	SetupWriter(os.Stderr, level)
}

// SetupWriter installs a backend writing to w. Useful for capturing log
// output in tests.
func SetupWriter(w io.Writer, level logging.Level) {
	backend := logging.NewLogBackend(w, "", 0)
	logging.SetFormatter(stderrFormat)
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}
