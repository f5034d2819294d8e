package store

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// defaultIndent is the indentation for pretty-printed JSON state files.
const defaultIndent = "  "

// Codec defines how the state document is serialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec.
	Extension() string
}

// JSONCodec serializes the state document as indented JSON.
type JSONCodec struct{}

// NewJSONCodec creates a plain JSON codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Encode implements Codec.Encode.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", defaultIndent)

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	err := json.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension.
func (c *JSONCodec) Extension() string {
	return ".json"
}

// LZ4Codec serializes the state document as an LZ4-framed JSON stream. Diff
// content dominates the document and compresses well, so this is the default
// codec for repositories of any real size.
type LZ4Codec struct{}

// NewLZ4Codec creates an LZ4-compressed JSON codec.
func NewLZ4Codec() *LZ4Codec {
	return &LZ4Codec{}
}

// Encode implements Codec.Encode.
func (c *LZ4Codec) Encode(w io.Writer, state any) error {
	zw := lz4.NewWriter(w)

	err := json.NewEncoder(zw).Encode(state)
	if err != nil {
		return fmt.Errorf("lz4 encode: %w", err)
	}

	closeErr := zw.Close()
	if closeErr != nil {
		return fmt.Errorf("lz4 flush: %w", closeErr)
	}

	return nil
}

// Decode implements Codec.Decode.
func (c *LZ4Codec) Decode(r io.Reader, state any) error {
	err := json.NewDecoder(lz4.NewReader(r)).Decode(state)
	if err != nil {
		return fmt.Errorf("lz4 decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension.
func (c *LZ4Codec) Extension() string {
	return ".json.lz4"
}
