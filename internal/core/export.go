// Licensed under the MIT License. See LICENSE file in the project root for details.

package core

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// DumpRecord is one key/value pair of a dump.
type DumpRecord[K comparable, V any] struct {
	Key   K `json:"key" msgpack:"key"`
	Value V `json:"value" msgpack:"value"`
}

// Dump is the diagnostic image of one snapshot. It is not a persistence
// format: there is no way to load a dump back into a dictionary.
type Dump[K comparable, V any] struct {
	Dictionary string             `json:"dictionary" msgpack:"dictionary"`
	Generation uint64             `json:"generation" msgpack:"generation"`
	Count      int                `json:"count" msgpack:"count"`
	Entries    []DumpRecord[K, V] `json:"entries" msgpack:"entries"`
}

// NewDump collects every present key of snap. Entry order is unspecified.
func NewDump[K comparable, V any](ctx context.Context, snap *Snapshot[K, V]) Dump[K, V] {
	dump := Dump[K, V]{
		Dictionary: snap.d.Name(),
		Generation: uint64(snap.Gen()),
	}
	for k, v := range snap.All(ctx) {
		dump.Entries = append(dump.Entries, DumpRecord[K, V]{Key: k, Value: v})
	}
	dump.Count = len(dump.Entries)
	return dump
}

// ExportJSON writes a dump of snap to w as indented JSON.
func ExportJSON[K comparable, V any](ctx context.Context, snap *Snapshot[K, V], w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewDump(ctx, snap)); err != nil {
		return fmt.Errorf("failed to encode JSON dump: %w", err)
	}
	return nil
}

// ExportMsgpack writes a dump of snap to w as msgpack.
func ExportMsgpack[K comparable, V any](ctx context.Context, snap *Snapshot[K, V], w io.Writer) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(NewDump(ctx, snap)); err != nil {
		return fmt.Errorf("failed to encode msgpack dump: %w", err)
	}
	return nil
}

// ReadMsgpackDump decodes a dump written by ExportMsgpack.
func ReadMsgpackDump[K comparable, V any](r io.Reader) (Dump[K, V], error) {
	var dump Dump[K, V]
	if err := msgpack.NewDecoder(r).Decode(&dump); err != nil {
		return dump, fmt.Errorf("failed to decode msgpack dump: %w", err)
	}
	return dump, nil
}

// ExportFile writes a dump of snap to filename. Files ending in .json are
// written as JSON, everything else as msgpack.
func ExportFile[K comparable, V any](ctx context.Context, snap *Snapshot[K, V], filename string) (err error) {
	file, err := os.Create(filename) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filename, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file %s: %w", filename, cerr)
		}
	}()

	writer := bufio.NewWriter(file)
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		err = ExportJSON(ctx, snap, writer)
	} else {
		err = ExportMsgpack(ctx, snap, writer)
	}
	if err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush file %s: %w", filename, err)
	}
	return nil
}
