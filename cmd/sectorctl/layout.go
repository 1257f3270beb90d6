package main

import (
	"encoding/json"
	"fmt"
	"os"
	"unsafe"

	"github.com/tailscale/hujson"
	"github.com/vela-systems/sectorstore/pkg/sectorstore"
)

// fieldConfig is one entry of a layout config file. The file itself is
// HuJSON (JSON plus comments and trailing commas), loaded with
// github.com/tailscale/hujson so operators can annotate a saved layout.
type fieldConfig struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Size uint32 `json:"size,omitempty"`
}

type storeConfig struct {
	ChunkCapacity uint64        `json:"chunkCapacity"`
	Fields        []fieldConfig `json:"fields"`
}

// loadStoreConfig reads a HuJSON layout file from path.
func loadStoreConfig(path string) (storeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return storeConfig{}, err
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return storeConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	var cfg storeConfig

	if err := json.Unmarshal(std, &cfg); err != nil {
		return storeConfig{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	return cfg, nil
}

// kindSize returns the byte width for a builtin scalar kind, or 0 (use
// fieldConfig.Size) for "bytes".
func kindSize(kind string) (size, align uint32, ok bool) {
	switch kind {
	case "u32":
		return 4, 4, true
	case "u64":
		return 8, 8, true
	case "f64":
		return 8, 8, true
	case "f64x2":
		return 16, 8, true
	case "bytes":
		return 0, 1, true
	default:
		return 0, 0, false
	}
}

// podComponent builds a ComponentDesc for a plain-old-data field of the
// given size: bitwise move/copy, no destructor. Every builtin kind in a
// layout config is POD, so a store assembled from loadStoreConfig is always
// trivially relocatable end to end and takes the bulk byte-copy fast path.
func podComponent(size, align uint32) sectorstore.ComponentDesc {
	return sectorstore.ComponentDesc{
		Size:                 size,
		Align:                align,
		TriviallyRelocatable: true,
		Move: func(dst, src unsafe.Pointer) {
			copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
		},
		Copy: func(dst, src unsafe.Pointer) {
			copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
		},
		Drop: func(unsafe.Pointer) {},
	}
}

// buildLayout turns a storeConfig into a sectorstore.LayoutSpec plus a
// name->ComponentType lookup and a ComponentType->byte-size lookup for the
// REPL's command parser (sectorstore itself keeps field sizes private).
func buildLayout(cfg storeConfig) (sectorstore.LayoutSpec, map[string]sectorstore.ComponentType, map[sectorstore.ComponentType]uint32, error) {
	names := make(map[string]sectorstore.ComponentType, len(cfg.Fields))
	sizes := make(map[sectorstore.ComponentType]uint32, len(cfg.Fields))
	spec := sectorstore.LayoutSpec{Components: make([]sectorstore.ComponentDesc, len(cfg.Fields))}

	for i, f := range cfg.Fields {
		size, align, ok := kindSize(f.Kind)
		if !ok {
			return sectorstore.LayoutSpec{}, nil, nil, fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}

		if f.Kind == "bytes" {
			if f.Size == 0 {
				return sectorstore.LayoutSpec{}, nil, nil, fmt.Errorf("field %q: bytes kind requires size", f.Name)
			}

			size = f.Size
		}

		spec.Components[i] = podComponent(size, align)
		names[f.Name] = sectorstore.ComponentType(i)
		sizes[sectorstore.ComponentType(i)] = size
	}

	return spec, names, sizes, nil
}
