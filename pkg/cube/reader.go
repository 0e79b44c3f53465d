package cube

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a cube from a raw little-endian float64 payload plus a YAML
// header sidecar. This is the minimal ingestion path for the CLI; richer
// image formats are converted to it upstream.
func Load(headerPath, dataPath string) (*SpectralCube, error) {
	raw, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("error reading cube header: %w", err)
	}
	var hdr Header
	if err := yaml.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("error parsing cube header: %w", err)
	}

	payload, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("error reading cube payload: %w", err)
	}
	if len(payload)%8 != 0 {
		return nil, fmt.Errorf("cube payload size %d is not a multiple of 8", len(payload))
	}

	data := make([]float64, len(payload)/8)
	for i := range data {
		bits := binary.LittleEndian.Uint64(payload[i*8:])
		data[i] = math.Float64frombits(bits)
	}

	return New(hdr, data)
}

// Save writes the cube back out in the same header + payload pair format.
// Used by tooling that synthesizes test cubes.
func Save(s *SpectralCube, headerPath, dataPath string) error {
	hdr, err := yaml.Marshal(s.Header)
	if err != nil {
		return fmt.Errorf("error marshaling cube header: %w", err)
	}
	if err := os.WriteFile(headerPath, hdr, 0644); err != nil {
		return fmt.Errorf("error writing cube header: %w", err)
	}

	payload := make([]byte, len(s.data)*8)
	for i, v := range s.data {
		binary.LittleEndian.PutUint64(payload[i*8:], math.Float64bits(v))
	}
	if err := os.WriteFile(dataPath, payload, 0644); err != nil {
		return fmt.Errorf("error writing cube payload: %w", err)
	}
	return nil
}
