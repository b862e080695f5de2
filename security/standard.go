package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pdfcodec/ir/raw"
)

// Algorithm selects the cipher and revision for new encryption dictionaries.
type Algorithm int

const (
	RC4Key40 Algorithm = iota
	RC4Key128
	AES128
	AES256
)

func (a Algorithm) String() string {
	switch a {
	case RC4Key40:
		return "rc4-40"
	case RC4Key128:
		return "rc4-128"
	case AES128:
		return "aes-128"
	case AES256:
		return "aes-256"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm accepts the names returned by Algorithm.String.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range []Algorithm{RC4Key40, RC4Key128, AES128, AES256} {
		if strings.EqualFold(s, a.String()) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown encryption algorithm %q", s)
}

// Options configures BuildStandardEncryption.
type Options struct {
	UserPassword  string
	OwnerPassword string
	Permissions   raw.Permissions
	Algorithm     Algorithm
	// FileID is the first /ID string of the target document. A random ID
	// is generated when empty; read it back with Handler.FileID.
	FileID        []byte
	PlainMetadata bool
}

// BuildStandardEncryption creates an encryption dictionary for the
// Standard security handler together with an owner-authenticated handler.
// An empty owner password defaults to the user password.
func BuildStandardEncryption(opts Options) (*raw.DictObj, Handler, error) {
	owner := opts.OwnerPassword
	if owner == "" {
		owner = opts.UserPassword
	}
	h := &standardHandler{
		p:           PermissionsValue(opts.Permissions),
		id:          opts.FileID,
		encryptMeta: !opts.PlainMetadata,
	}
	if len(h.id) == 0 {
		h.id = make([]byte, 16)
		if _, err := rand.Read(h.id); err != nil {
			return nil, nil, err
		}
	}
	switch opts.Algorithm {
	case RC4Key40:
		h.v, h.r, h.keyBytes, h.stmF = 1, 2, 5, methodRC4
		h.encryptMeta = true
	case RC4Key128:
		h.v, h.r, h.keyBytes, h.stmF = 2, 3, 16, methodRC4
		h.encryptMeta = true
	case AES128:
		h.v, h.r, h.keyBytes, h.stmF = 4, 4, 16, methodAESV2
	case AES256:
		h.v, h.r, h.keyBytes, h.stmF = 5, 6, 32, methodAESV3
	default:
		return nil, nil, fmt.Errorf("%w: algorithm %d", ErrUnsupported, opts.Algorithm)
	}
	h.strF = h.stmF

	if h.r <= 4 {
		up, ok := padPassword(opts.UserPassword)
		if !ok {
			return nil, nil, errors.New("user password is not representable in PDFDocEncoding")
		}
		op, ok := padPassword(owner)
		if !ok {
			return nil, nil, errors.New("owner password is not representable in PDFDocEncoding")
		}
		h.o = h.computeO(up, op)
		h.key = h.computeFileKey(up)
		h.u = h.computeU(h.key)
	} else {
		up, err := utf8Password(opts.UserPassword, h.r)
		if err != nil {
			return nil, nil, fmt.Errorf("prepare user password: %w", err)
		}
		op, err := utf8Password(owner, h.r)
		if err != nil {
			return nil, nil, fmt.Errorf("prepare owner password: %w", err)
		}
		h.key = make([]byte, 32)
		if _, err := rand.Read(h.key); err != nil {
			return nil, nil, err
		}
		if err := h.computeUAndUE(up); err != nil {
			return nil, nil, err
		}
		if err := h.computeOAndOE(op); err != nil {
			return nil, nil, err
		}
		h.perms = h.computePerms()
	}
	h.authed, h.owner = true, true
	return h.encryptDict(), h, nil
}

func (h *standardHandler) encryptDict() *raw.DictObj {
	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("Standard"))
	d.Set("V", raw.NumberInt(int64(h.v)))
	d.Set("R", raw.NumberInt(int64(h.r)))
	d.Set("Length", raw.NumberInt(int64(h.keyBytes*8)))
	if h.v >= 4 {
		cf := raw.Dict()
		cf.Set("Type", raw.NameLiteral("CryptFilter"))
		cf.Set("CFM", raw.NameLiteral(h.stmF.String()))
		cf.Set("AuthEvent", raw.NameLiteral("DocOpen"))
		cf.Set("Length", raw.NumberInt(int64(h.keyBytes)))
		filters := raw.Dict()
		filters.Set("StdCF", cf)
		d.Set("CF", filters)
		d.Set("StmF", raw.NameLiteral("StdCF"))
		d.Set("StrF", raw.NameLiteral("StdCF"))
	}
	d.Set("O", raw.HexStr(h.o))
	d.Set("U", raw.HexStr(h.u))
	if h.r >= 5 {
		d.Set("OE", raw.HexStr(h.oe))
		d.Set("UE", raw.HexStr(h.ue))
		d.Set("Perms", raw.HexStr(h.perms))
	}
	d.Set("P", raw.NumberInt(int64(int32(h.p))))
	if h.v >= 4 && !h.encryptMeta {
		d.Set("EncryptMetadata", raw.Bool(false))
	}
	return d
}

// PermissionsValue encodes permissions as the /P flags. Reserved bits
// 7, 8 and 13-32 are set, bits 1-2 are clear.
func PermissionsValue(p raw.Permissions) uint32 {
	val := uint32(0xFFFFF0C0)
	set := func(bit uint, on bool) {
		if on {
			val |= 1 << (bit - 1)
		}
	}
	set(3, p.Print)
	set(4, p.Modify)
	set(5, p.Copy)
	set(6, p.ModifyAnnotations)
	set(9, p.FillForms)
	set(10, p.ExtractAccessible)
	set(11, p.Assemble)
	set(12, p.PrintHighQuality)
	return val
}

// DecodePermissions interprets /P for revision r. Revision 2 has no bits
// 9-12; they follow the coarser bits 3-6.
func DecodePermissions(p uint32, r int) raw.Permissions {
	bit := func(n uint) bool { return p&(1<<(n-1)) != 0 }
	perm := raw.Permissions{
		Print:             bit(3),
		Modify:            bit(4),
		Copy:              bit(5),
		ModifyAnnotations: bit(6),
		FillForms:         bit(9),
		ExtractAccessible: bit(10),
		Assemble:          bit(11),
		PrintHighQuality:  bit(12),
	}
	if r == 2 {
		perm.FillForms = perm.ModifyAnnotations
		perm.ExtractAccessible = perm.Copy
		perm.Assemble = perm.Modify
		perm.PrintHighQuality = perm.Print
	}
	return perm
}
