// Package inference - onnxruntime sessions feeding the post-inference callbacks.
package inference

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// DefaultSharedLibPath returns the bundled onnxruntime library for the current platform.
//
// Returns:
//   - string: The path to the shared library, empty if the platform has none.
func DefaultSharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.1.23.0.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	return ""
}

// InitializeRuntime loads the onnxruntime shared library and creates the
// process-wide environment. It must be called once before NewSession.
//
// Arguments:
//   - libPath: The shared library. Empty selects DefaultSharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to load.
func InitializeRuntime(libPath string) error {
	if libPath == "" {
		libPath = DefaultSharedLibPath()
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library %q", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize onnxruntime environment")
	}
	return nil
}

// DestroyRuntime releases the environment created by InitializeRuntime.
func DestroyRuntime() error {
	return errors.Wrap(ort.DestroyEnvironment(), "destroy onnxruntime environment")
}
