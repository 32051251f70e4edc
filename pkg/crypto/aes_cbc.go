package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
	"github.com/zenazn/pkcs7pad"
)

// ErrMalformed is returned by Decrypt for input that cannot be a sealed
// payload: too short, or not a whole number of blocks.
var ErrMalformed = errors.New("malformed ciphertext")

// AesCbc seals payloads as "${iv}${ciphertext}" with a fresh random IV per
// payload and PKCS#7 padding.
type AesCbc struct {
	cfg AesCbcConfig

	cipher cipher.Block
}

type AesCbcConfig struct {
	// Key is 16, 24 or 32 bytes, selecting AES-128, -192 or -256.
	Key []byte
}

func NewAesCbc(cfg AesCbcConfig) (*AesCbc, error) {
	cipher, err := aes.NewCipher(cfg.Key)
	if err != nil {
		return nil, err
	}

	return &AesCbc{
		cfg:    cfg,
		cipher: cipher,
	}, nil
}

func (c *AesCbc) Encrypt(payload []byte) ([]byte, error) {
	size := c.cipher.BlockSize()

	payload = pkcs7pad.Pad(payload, size)

	sealed := make([]byte, size+len(payload))
	iv := sealed[:size]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.Wrap(err, "iv")
	}

	encrypter := cipher.NewCBCEncrypter(c.cipher, iv)
	encrypter.CryptBlocks(sealed[size:], payload)

	return sealed, nil
}

func (c *AesCbc) Decrypt(sealed []byte) ([]byte, error) {
	size := c.cipher.BlockSize()

	if len(sealed) < 2*size || len(sealed)%size != 0 {
		return nil, ErrMalformed
	}

	iv, payload := sealed[:size], sealed[size:]

	decrypter := cipher.NewCBCDecrypter(c.cipher, iv)
	decrypted := make([]byte, len(payload))

	decrypter.CryptBlocks(decrypted, payload)

	unpadded, err := pkcs7pad.Unpad(decrypted)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	return unpadded, nil
}
