package models

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMalformedUpload = errors.New("malformed upload")
	ErrUploadTooLarge  = errors.New("upload too large")
)

// Upload is a decoded `cargo publish` request body.
type Upload struct {
	Metadata    PublishMetadata
	RawMetadata []byte
	Tarball     []byte
}

// ReadUpload decodes the framed publish body:
// u32 LE metadata length, JSON metadata, u32 LE tarball length, tarball.
// Lengths are read exactly and the stream must end after the tarball.
// maxSize bounds the sum of both frames; zero means unbounded.
func ReadUpload(r io.Reader, maxSize int64) (*Upload, error) {
	var budget = maxSize

	metadata, err := readFrame(r, &budget, "metadata")
	if err != nil {
		return nil, err
	}
	tarball, err := readFrame(r, &budget, "crate")
	if err != nil {
		return nil, err
	}

	var trailing [1]byte
	if n, err := io.ReadFull(r, trailing[:]); n > 0 {
		return nil, fmt.Errorf("%w: unexpected data after the crate file", ErrMalformedUpload)
	} else if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpload, err)
	}

	upload := &Upload{RawMetadata: metadata, Tarball: tarball}
	if err := json.Unmarshal(metadata, &upload.Metadata); err != nil {
		return nil, fmt.Errorf("%w: invalid metadata: %v", ErrMalformedUpload, err)
	}
	return upload, nil
}

func readFrame(r io.Reader, budget *int64, what string) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("%w: reading %s length: %v", ErrMalformedUpload, what, err)
	}
	if *budget > 0 {
		if int64(length) > *budget {
			return nil, fmt.Errorf("%w: %s of %d bytes", ErrUploadTooLarge, what, length)
		}
		*budget -= int64(length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: %s truncated: %v", ErrMalformedUpload, what, err)
	}
	return data, nil
}

// EncodeUpload builds a framed publish body, as `cargo publish` does.
func EncodeUpload(metadata []byte, tarball []byte) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(metadata)))
	buf.Write(metadata)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(tarball)))
	buf.Write(tarball)
	return buf.Bytes()
}
