package security

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
)

// DataClass identifies the kind of payload being encrypted or decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

// AuthenticationError reports a password that matches neither the owner
// nor the user entry of the encryption dictionary.
type AuthenticationError struct {
	ID []byte
}

func (e *AuthenticationError) Error() string { return "The specified password is invalid." }

// ErrUnsupported is returned for security handlers other than Standard R2-R6.
var ErrUnsupported = errors.New("unsupported security handler")

// Handler encrypts and decrypts strings and streams of one document.
type Handler interface {
	IsEncrypted() bool
	// Authenticate tries password as owner password, then as user password.
	Authenticate(password string) error
	Authenticated() bool
	OwnerAuthenticated() bool
	DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error)
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	EncryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error)
	Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() raw.Permissions
	EncryptMetadata() bool
	Revision() int
	FileID() []byte
	// Close discards the file key. The handler is locked afterwards.
	Close()
}

type HandlerBuilder struct {
	encryptDict *raw.DictObj
	trailer     *raw.DictObj
	fileID      []byte
	logger      observability.Logger
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithTrailer(d *raw.DictObj) *HandlerBuilder { b.trailer = d; return b }
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder      { b.fileID = id; return b }
func (b *HandlerBuilder) WithLogger(l observability.Logger) *HandlerBuilder {
	b.logger = l
	return b
}

// Build validates the encryption dictionary and returns a locked handler.
// Without an encryption dictionary a pass-through handler is returned.
func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return noEncryptionHandler{}, nil
	}
	d := b.encryptDict
	if f, ok := d.GetName("Filter"); ok && f != "Standard" {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, f)
	}
	v, _ := d.GetInt("V")
	r, _ := d.GetInt("R")
	if r < 2 || r > 6 {
		return nil, fmt.Errorf("%w: revision %d", ErrUnsupported, r)
	}

	h := &standardHandler{v: int(v), r: int(r), encryptMeta: true}
	switch v {
	case 0, 1:
		h.keyBytes = 5
	case 2, 3, 4:
		bits, ok := d.GetInt("Length")
		if !ok {
			bits = 40
			if v == 4 {
				bits = 128
			}
		}
		if bits < 40 || bits > 128 || bits%8 != 0 {
			return nil, fmt.Errorf("invalid encryption key length %d", bits)
		}
		h.keyBytes = int(bits / 8)
	case 5:
		h.keyBytes = 32
	default:
		return nil, fmt.Errorf("%w: V %d", ErrUnsupported, v)
	}

	var err error
	entryLen := 32
	if h.r >= 5 {
		entryLen = 48
	}
	if h.o, err = fixedString(d, "O", entryLen); err != nil {
		return nil, err
	}
	if h.u, err = fixedString(d, "U", entryLen); err != nil {
		return nil, err
	}
	if h.r >= 5 {
		if h.oe, err = fixedString(d, "OE", 32); err != nil {
			return nil, err
		}
		if h.ue, err = fixedString(d, "UE", 32); err != nil {
			return nil, err
		}
		if h.r == 6 {
			if h.perms, err = fixedString(d, "Perms", 16); err != nil {
				return nil, err
			}
		}
	}
	p, ok := d.GetInt("P")
	if !ok {
		return nil, errors.New("encryption dictionary has no /P")
	}
	h.p = uint32(int32(p))
	if em, ok := d.GetBool("EncryptMetadata"); ok && h.v >= 4 {
		h.encryptMeta = em
	}

	h.id = b.fileID
	if len(h.id) == 0 && b.trailer != nil {
		if ids, ok := b.trailer.GetArray("ID"); ok && ids.Len() > 0 {
			if s, ok := ids.Items[0].(raw.StringObj); ok {
				h.id = s.Value()
			}
		}
	}

	if h.v >= 4 {
		if h.filters, err = parseCryptFilters(d); err != nil {
			return nil, err
		}
		if h.stmF, err = h.lookupFilter(nameOr(d, "StmF", "Identity")); err != nil {
			return nil, err
		}
		if h.strF, err = h.lookupFilter(nameOr(d, "StrF", "Identity")); err != nil {
			return nil, err
		}
	} else {
		h.stmF, h.strF = methodRC4, methodRC4
	}

	observability.OrNop(b.logger).Debug("security handler",
		observability.Int("v", h.v),
		observability.Int("r", h.r),
		observability.Int("key_bits", h.keyBytes*8),
		observability.String("stream_method", h.stmF.String()),
		observability.String("string_method", h.strF.String()),
	)
	return h, nil
}

// DeriveFileKey authenticates password against the encryption dictionary
// and returns the file encryption key.
func DeriveFileKey(encryptDict *raw.DictObj, password string, fileID []byte) ([]byte, error) {
	h, err := (&HandlerBuilder{}).WithEncryptDict(encryptDict).WithFileID(fileID).Build()
	if err != nil {
		return nil, err
	}
	sh, ok := h.(*standardHandler)
	if !ok {
		return nil, errors.New("document is not encrypted")
	}
	if err := sh.Authenticate(password); err != nil {
		return nil, err
	}
	return append([]byte(nil), sh.key...), nil
}

type method int

const (
	methodNone method = iota
	methodRC4
	methodAESV2
	methodAESV3
)

func (m method) String() string {
	switch m {
	case methodRC4:
		return "V2"
	case methodAESV2:
		return "AESV2"
	case methodAESV3:
		return "AESV3"
	}
	return "None"
}

func (m method) aes() bool { return m == methodAESV2 || m == methodAESV3 }

type standardHandler struct {
	v, r        int
	keyBytes    int
	o, u        []byte
	oe, ue      []byte
	perms       []byte
	p           uint32
	id          []byte
	encryptMeta bool

	stmF, strF method
	filters    map[string]method

	key    []byte
	owner  bool
	authed bool
}

func (h *standardHandler) IsEncrypted() bool        { return true }
func (h *standardHandler) Authenticated() bool      { return h.authed }
func (h *standardHandler) OwnerAuthenticated() bool { return h.owner }
func (h *standardHandler) EncryptMetadata() bool    { return h.encryptMeta }
func (h *standardHandler) Revision() int            { return h.r }
func (h *standardHandler) FileID() []byte           { return h.id }

func (h *standardHandler) Authenticate(password string) error {
	var err error
	if h.r >= 5 {
		var pw []byte
		if pw, err = utf8Password(password, h.r); err == nil {
			if err = h.authenticateOwner6(pw); err != nil {
				err = h.authenticateUser6(pw)
			}
		}
	} else {
		padded, ok := padPassword(password)
		if !ok {
			return &AuthenticationError{ID: h.id}
		}
		if err = h.authenticateOwner(padded); err != nil {
			err = h.authenticateUser(padded)
		}
	}
	if err != nil {
		return &AuthenticationError{ID: h.id}
	}
	h.authed = true
	return nil
}

func (h *standardHandler) Close() {
	for i := range h.key {
		h.key[i] = 0
	}
	h.key = nil
	h.authed = false
	h.owner = false
}

func (h *standardHandler) Permissions() raw.Permissions {
	if h.owner {
		return raw.AllPermissions()
	}
	return DecodePermissions(h.p, h.r)
}

func (h *standardHandler) lookupFilter(name string) (method, error) {
	switch name {
	case "Identity":
		return methodNone, nil
	case "":
		return h.stmF, nil
	}
	if m, ok := h.filters[name]; ok {
		return m, nil
	}
	return methodNone, fmt.Errorf("crypt filter %s not defined", name)
}

func (h *standardHandler) methodFor(class DataClass, filter string) (method, error) {
	if filter != "" {
		return h.lookupFilter(filter)
	}
	switch class {
	case DataClassString:
		return h.strF, nil
	case DataClassMetadataStream:
		if !h.encryptMeta {
			return methodNone, nil
		}
	}
	return h.stmF, nil
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return h.DecryptWithFilter(objNum, gen, data, class, "")
}

func (h *standardHandler) DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	m, err := h.methodFor(class, cryptFilter)
	if err != nil {
		return nil, err
	}
	if m == methodNone || len(data) == 0 {
		return data, nil
	}
	if !h.authed {
		return nil, raw.ErrLocked
	}
	key := h.objectKey(objNum, gen, m)
	if m.aes() {
		return aesDecrypt(key, data)
	}
	return rc4Crypt(key, data)
}

func (h *standardHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return h.EncryptWithFilter(objNum, gen, data, class, "")
}

func (h *standardHandler) EncryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	m, err := h.methodFor(class, cryptFilter)
	if err != nil {
		return nil, err
	}
	if m == methodNone {
		return data, nil
	}
	if !h.authed {
		return nil, raw.ErrLocked
	}
	key := h.objectKey(objNum, gen, m)
	if m.aes() {
		return aesEncrypt(key, data)
	}
	return rc4Crypt(key, data)
}

// objectKey derives the key for one indirect object. Revisions 5 and 6
// use the file key directly.
func (h *standardHandler) objectKey(num, gen int, m method) []byte {
	if h.r >= 5 {
		return h.key
	}
	buf := make([]byte, 0, len(h.key)+9)
	buf = append(buf, h.key...)
	buf = append(buf, byte(num), byte(num>>8), byte(num>>16), byte(gen), byte(gen>>8))
	if m.aes() {
		buf = append(buf, "sAlT"...)
	}
	sum := md5Sum(buf)
	n := len(h.key) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                  { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) Authenticated() bool                { return true }
func (noEncryptionHandler) OwnerAuthenticated() bool           { return true }
func (noEncryptionHandler) DecryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) EncryptWithFilter(objNum, gen int, data []byte, class DataClass, cryptFilter string) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() raw.Permissions { return raw.AllPermissions() }
func (noEncryptionHandler) EncryptMetadata() bool        { return false }
func (noEncryptionHandler) Revision() int                { return 0 }
func (noEncryptionHandler) FileID() []byte               { return nil }
func (noEncryptionHandler) Close()                       {}

// NoopHandler returns a reusable pass-through encryption handler.
func NoopHandler() Handler { return noEncryptionHandler{} }

func parseCryptFilters(d *raw.DictObj) (map[string]method, error) {
	out := make(map[string]method)
	cf, ok := d.GetDict("CF")
	if !ok {
		return out, nil
	}
	for _, name := range cf.Keys() {
		entry, ok := cf.GetDict(name)
		if !ok {
			return nil, errors.New("crypt filter entry must be a dictionary")
		}
		cfm, _ := entry.GetName("CFM")
		switch cfm {
		case "", "None":
			out[name] = methodNone
		case "V2":
			out[name] = methodRC4
		case "AESV2":
			out[name] = methodAESV2
		case "AESV3":
			out[name] = methodAESV3
		default:
			return nil, fmt.Errorf("unsupported crypt filter method %s", cfm)
		}
	}
	return out, nil
}

func fixedString(d *raw.DictObj, key string, n int) ([]byte, error) {
	b, ok := d.GetString(key)
	if !ok {
		return nil, fmt.Errorf("encryption dictionary has no /%s", key)
	}
	if len(b) < n {
		return nil, fmt.Errorf("encryption dictionary /%s too short: %d bytes", key, len(b))
	}
	return b[:n], nil
}

func nameOr(d *raw.DictObj, key, def string) string {
	if n, ok := d.GetName(key); ok {
		return n
	}
	return def
}
