// LocalSaver keeps the pre-shared signaling key in a local file named KeyFile
// (see: SaveKey() and GetKey()), so that a server and its clients can seal
// signaling frames with the same key.
//
// The file holds "${len(key)}${key}" (see: writeKey() and readKey()).

package keystore

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// KeySize is the length of generated keys, selecting AES-128.
const KeySize = 16

var errBadKeySize = errors.New("key must be 16, 24 or 32 bytes")

type LocalSaver struct {
	cfg LocalSaverConfig
}

type LocalSaverConfig struct {
	KeyFile string
}

func NewLocalSaver(cfg LocalSaverConfig) *LocalSaver {
	return &LocalSaver{
		cfg: cfg,
	}
}

// GenerateKey returns a random key of KeySize bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)

	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}

	return key, nil
}

func (m *LocalSaver) SaveKey(key []byte) error {
	if !validKeySize(len(key)) {
		return errBadKeySize
	}

	buf := &bytes.Buffer{}

	if err := m.writeKey(buf, key); err != nil {
		return err
	}

	return os.WriteFile(m.cfg.KeyFile, buf.Bytes(), 0600)
}

func (m *LocalSaver) GetKey() ([]byte, error) {
	payload, err := os.ReadFile(m.cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	key, err := m.readKey(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, m.cfg.KeyFile)
	}

	if !validKeySize(len(key)) {
		return nil, errors.Wrap(errBadKeySize, m.cfg.KeyFile)
	}

	return key, nil
}

func (m *LocalSaver) writeKey(w io.Writer, key []byte) error {
	length := uint8(len(key))

	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return err
	}

	return binary.Write(w, binary.BigEndian, key)
}

func (m *LocalSaver) readKey(r io.Reader) ([]byte, error) {
	var length uint8

	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	b := make([]byte, length)

	return b, binary.Read(r, binary.BigEndian, b)
}

func validKeySize(n int) bool {
	return n == 16 || n == 24 || n == 32
}
