package compute

import (
	"log"
	"os"
	"strings"
	"sync"

	"github.com/san-kum/stemsim/internal/field"
)

// Backend evaluates the array kernels of the simulation. FFT2 and IFFT2
// transform the trailing two axes of every plane in place; IFFT2 is
// normalized so that IFFT2(FFT2(x)) == x.
type Backend interface {
	Name() string
	Available() bool
	FFT2(a *field.Complex) error
	IFFT2(a *field.Complex) error
	Abs2(a *field.Complex) *field.Real
	ComplexExponential(x *field.Real) *field.Complex
	Cleanup()
}

var (
	mu            sync.RWMutex
	activeBackend Backend
)

func init() {
	activeBackend = AutoSelectBackend()
}

func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if activeBackend != nil {
		activeBackend.Cleanup()
	}
	activeBackend = b
}

func GetBackend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return activeBackend
}

// AutoSelectBackend honours STEMSIM_BACKEND and falls back to the CPU.
func AutoSelectBackend() Backend {
	switch name := strings.ToLower(os.Getenv("STEMSIM_BACKEND")); name {
	case "", "cpu":
	case "serial":
		return NewSerialBackend()
	default:
		log.Printf("compute: backend %q not available, using cpu", name)
	}
	return NewCPUBackend()
}
