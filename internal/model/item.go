package model

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// An Item represents a stored blob and its consumption bookkeeping.
// The payload is already encrypted by the sender; the server never
// inspects it.
type Item struct {
	Base `msgpack:",inline" storm:"inline"`

	Payload       []byte `json:"data"           msgpack:"payload"`
	Checksum      []byte `json:"-"              msgpack:"checksum"`
	Name          string `json:"name"           msgpack:"name"`
	Text          bool   `json:"text"           msgpack:"text"`
	DownloadLimit int    `json:"download_limit" msgpack:"download_limit"`
	Downloads     int    `json:"downloads"      msgpack:"downloads"`
}

// Exhausted returns true when the item has no consumption left.
func (i *Item) Exhausted() bool {
	return i.Downloads >= i.DownloadLimit
}

// Remaining returns the number of consumptions left.
func (i *Item) Remaining() int {
	if i.Exhausted() {
		return 0
	}
	return i.DownloadLimit - i.Downloads
}

// Seal records the payload checksum used to detect on-disk corruption.
func (i *Item) Seal() {
	sum := blake2b.Sum256(i.Payload)
	i.Checksum = sum[:]
}

// Verify returns an error if the payload no longer matches the sealed checksum.
func (i *Item) Verify() error {
	sum := blake2b.Sum256(i.Payload)
	if !bytes.Equal(sum[:], i.Checksum) {
		return errors.New("payload checksum mismatch")
	}
	return nil
}

// Snapshot returns a copy of the item's metadata without the payload.
func (i *Item) Snapshot() *Item {
	snapshot := *i
	snapshot.Payload = nil
	snapshot.Checksum = nil
	return &snapshot
}
