package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"hash"

	"github.com/xdg-go/stringprep"

	"github.com/wudi/pdfcodec/ir/raw"
)

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

var zeroIV = make([]byte, aes.BlockSize)

// padPassword encodes a revision 2-4 password in PDFDocEncoding and pads it
// to 32 bytes.
func padPassword(pwd string) ([]byte, bool) {
	enc, ok := raw.EncodePDFDoc(pwd)
	if !ok {
		return nil, false
	}
	padded := make([]byte, 32)
	n := copy(padded, enc)
	copy(padded[n:], passwordPadding)
	return padded, true
}

// utf8Password prepares a revision 5/6 password. Revision 6 applies SASLprep.
func utf8Password(pwd string, r int) ([]byte, error) {
	if r >= 6 {
		prepped, err := stringprep.SASLprep.Prepare(pwd)
		if err != nil {
			return nil, err
		}
		pwd = prepped
	}
	b := []byte(pwd)
	if len(b) > 127 {
		b = b[:127]
	}
	return b, nil
}

func md5Sum(b []byte) []byte {
	sum := md5.Sum(b)
	return sum[:]
}

// computeFileKey is Algorithm 2.
func (h *standardHandler) computeFileKey(paddedUserPwd []byte) []byte {
	m := md5.New()
	m.Write(paddedUserPwd)
	m.Write(h.o)
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], h.p)
	m.Write(p[:])
	m.Write(h.id)
	if h.r >= 4 && !h.encryptMeta {
		m.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := m.Sum(nil)
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			m.Reset()
			m.Write(key[:h.keyBytes])
			key = m.Sum(key[:0])
		}
	}
	return key[:h.keyBytes]
}

// ownerKey is the RC4 key of Algorithm 3 steps a-d.
func (h *standardHandler) ownerKey(paddedOwnerPwd []byte) []byte {
	sum := md5Sum(paddedOwnerPwd)
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5Sum(sum[:h.keyBytes])
		}
	}
	return sum[:h.keyBytes]
}

// computeO is Algorithm 3.
func (h *standardHandler) computeO(paddedUserPwd, paddedOwnerPwd []byte) []byte {
	key := h.ownerKey(paddedOwnerPwd)
	o := rc4XOR(key, paddedUserPwd)
	if h.r >= 3 {
		tmp := make([]byte, len(key))
		for i := byte(1); i <= 19; i++ {
			for j := range tmp {
				tmp[j] = key[j] ^ i
			}
			o = rc4XOR(tmp, o)
		}
	}
	return o
}

// computeU is Algorithm 4 (R2) and Algorithm 5 (R3, R4).
func (h *standardHandler) computeU(fileKey []byte) []byte {
	if h.r == 2 {
		return rc4XOR(fileKey, passwordPadding)
	}
	m := md5.New()
	m.Write(passwordPadding)
	m.Write(h.id)
	u := rc4XOR(fileKey, m.Sum(nil))
	tmp := make([]byte, len(fileKey))
	for i := byte(1); i <= 19; i++ {
		for j := range tmp {
			tmp[j] = fileKey[j] ^ i
		}
		u = rc4XOR(tmp, u)
	}
	return append(u[:16], make([]byte, 16)...)
}

// authenticateUser is Algorithm 6.
func (h *standardHandler) authenticateUser(paddedUserPwd []byte) error {
	key := h.computeFileKey(paddedUserPwd)
	u := h.computeU(key)
	n := 32
	if h.r >= 3 {
		n = 16
	}
	if !bytes.Equal(u[:n], h.u[:n]) {
		return errBadPassword
	}
	h.key = key
	return nil
}

// authenticateOwner is Algorithm 7.
func (h *standardHandler) authenticateOwner(paddedOwnerPwd []byte) error {
	key := h.ownerKey(paddedOwnerPwd)
	buf := append([]byte(nil), h.o...)
	if h.r == 2 {
		buf = rc4XOR(key, buf)
	} else {
		tmp := make([]byte, len(key))
		for i := 19; i >= 0; i-- {
			for j := range tmp {
				tmp[j] = key[j] ^ byte(i)
			}
			buf = rc4XOR(tmp, buf)
		}
	}
	if err := h.authenticateUser(buf); err != nil {
		return err
	}
	h.owner = true
	return nil
}

var errBadPassword = errors.New("password mismatch")

// hashR6 is Algorithm 2.B. Revision 5 uses a single SHA-256.
func hashR6(r int, pwd, salt, udata []byte) []byte {
	s := sha256.New()
	s.Write(pwd)
	s.Write(salt)
	s.Write(udata)
	k := s.Sum(nil)
	if r < 6 {
		return k
	}

	k1 := make([]byte, 0, 64*(len(pwd)+64+len(udata)))
	for i := 0; i < 64 || int(k1[len(k1)-1]) > i-32; i++ {
		k1 = k1[:0]
		for j := 0; j < 64; j++ {
			k1 = append(k1, pwd...)
			k1 = append(k1, k...)
			k1 = append(k1, udata...)
		}
		c, _ := aes.NewCipher(k[:16])
		cipher.NewCBCEncrypter(c, k[16:32]).CryptBlocks(k1, k1)

		// the first 16 bytes as a big-endian integer mod 3 equal the byte sum mod 3
		sum := 0
		for _, b := range k1[:16] {
			sum += int(b)
		}
		var next hash.Hash
		switch sum % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(k1)
		k = next.Sum(nil)
	}
	return k[:32]
}

// authenticateUser6 is Algorithm 11.
func (h *standardHandler) authenticateUser6(pwd []byte) error {
	if !bytes.Equal(hashR6(h.r, pwd, h.u[32:40], nil)[:32], h.u[:32]) {
		return errBadPassword
	}
	key, err := aesCBCNoPad(hashR6(h.r, pwd, h.u[40:48], nil)[:32], h.ue, false)
	if err != nil {
		return err
	}
	if err := h.checkPerms(key); err != nil {
		return err
	}
	h.key = key
	return nil
}

// authenticateOwner6 is Algorithm 12.
func (h *standardHandler) authenticateOwner6(pwd []byte) error {
	if !bytes.Equal(hashR6(h.r, pwd, h.o[32:40], h.u)[:32], h.o[:32]) {
		return errBadPassword
	}
	key, err := aesCBCNoPad(hashR6(h.r, pwd, h.o[40:48], h.u)[:32], h.oe, false)
	if err != nil {
		return err
	}
	if err := h.checkPerms(key); err != nil {
		return err
	}
	h.key = key
	h.owner = true
	return nil
}

// computeUAndUE is Algorithm 8. h.key must hold the file key.
func (h *standardHandler) computeUAndUE(pwd []byte) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	h.u = append(hashR6(h.r, pwd, salt[:8], nil)[:32], salt...)
	ue, err := aesCBCNoPad(hashR6(h.r, pwd, salt[8:], nil)[:32], h.key, true)
	if err != nil {
		return err
	}
	h.ue = ue
	return nil
}

// computeOAndOE is Algorithm 9. h.u must already be set.
func (h *standardHandler) computeOAndOE(pwd []byte) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	h.o = append(hashR6(h.r, pwd, salt[:8], h.u)[:32], salt...)
	oe, err := aesCBCNoPad(hashR6(h.r, pwd, salt[8:], h.u)[:32], h.key, true)
	if err != nil {
		return err
	}
	h.oe = oe
	return nil
}

// computePerms is Algorithm 10.
func (h *standardHandler) computePerms() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf, h.p)
	copy(buf[4:8], []byte{0xFF, 0xFF, 0xFF, 0xFF})
	buf[8] = 'T'
	if !h.encryptMeta {
		buf[8] = 'F'
	}
	copy(buf[9:12], "adb")
	c, _ := aes.NewCipher(h.key)
	c.Encrypt(buf, buf)
	return buf
}

func (h *standardHandler) checkPerms(key []byte) error {
	if len(h.perms) != 16 {
		return nil
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	buf := make([]byte, 16)
	c.Decrypt(buf, h.perms)
	if string(buf[9:12]) != "adb" {
		return errors.New("invalid /Perms marker")
	}
	if binary.LittleEndian.Uint32(buf[:4]) != h.p {
		return errors.New("/Perms does not match /P")
	}
	return nil
}

func rc4XOR(key, data []byte) []byte {
	out := make([]byte, len(data))
	c, _ := rc4.NewCipher(key)
	c.XORKeyStream(out, data)
	return out
}

func rc4Crypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesEncrypt prefixes a random IV and applies PKCS#5 padding.
func aesEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, aes.BlockSize+len(data)+padLen)
	if _, err := rand.Read(out[:aes.BlockSize]); err != nil {
		return nil, err
	}
	plain := out[aes.BlockSize:]
	copy(plain, data)
	copy(plain[len(data):], bytes.Repeat([]byte{byte(padLen)}, padLen))
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(plain, plain)
	return out, nil
}

func aesDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("aes ciphertext not multiple of blocksize")
	}
	if len(ct) == 0 {
		return []byte{}, nil
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

// aesCBCNoPad runs AES-256-CBC with a zero IV over whole blocks.
func aesCBCNoPad(key, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not multiple of blocksize")
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(out, data)
	}
	return out, nil
}
