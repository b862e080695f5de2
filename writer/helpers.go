package writer

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/security"
)

func pdfVersion(doc *raw.Document, cfg Config) string {
	if cfg.Version != "" {
		return string(cfg.Version)
	}
	if doc.Version != "" {
		return doc.Version
	}
	return string(PDF17)
}

// fileID keeps the first identifier of the document and produces a new
// second one for this revision.
func fileID(doc *raw.Document, first []byte, cfg Config, seed []byte) [2][]byte {
	if len(first) == 0 {
		if arr, ok := doc.Trailer.GetArray("ID"); ok && arr.Len() == 2 {
			if s, ok := arr.Items[0].(raw.StringObj); ok && len(s.Bytes) > 0 {
				first = s.Bytes
			}
		}
	}
	h := sha256.New()
	h.Write([]byte(pdfVersion(doc, cfg)))
	h.Write(seed)
	sum := h.Sum(nil)[:16]
	if len(first) == 0 {
		first = sum
	}
	if cfg.Deterministic {
		return [2][]byte{first, sum}
	}
	second := make([]byte, 16)
	if _, err := rand.Read(second); err != nil {
		second = sum
	}
	return [2][]byte{first, second}
}

// compressStream returns a flate-encoded copy of s when it has no filter.
func compressStream(s *raw.StreamObj) (*raw.StreamObj, error) {
	if s.Dict.Has("Filter") {
		return s, nil
	}
	data, err := s.Data()
	if err != nil {
		return nil, err
	}
	enc, err := filters.FlateEncode(data)
	if err != nil {
		return nil, err
	}
	dict := s.Dict.Clone()
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	out := raw.NewStream(dict, nil)
	out.SetData(enc)
	return out, nil
}

// encryptObject returns a copy of obj with strings and stream data
// encrypted under the key of ref. obj itself is not modified.
func encryptObject(obj raw.Object, ref raw.ObjectRef, h security.Handler) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		enc, err := h.Encrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: enc, Hex: true}, nil
	case *raw.ArrayObj:
		arr := raw.NewArray()
		for _, item := range v.Items {
			e, err := encryptObject(item, ref, h)
			if err != nil {
				return nil, err
			}
			arr.Append(e)
		}
		return arr, nil
	case *raw.DictObj:
		d := raw.Dict()
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			e, err := encryptObject(val, ref, h)
			if err != nil {
				return nil, err
			}
			d.Set(k, e)
		}
		return d, nil
	case *raw.StreamObj:
		data, err := v.Data()
		if err != nil {
			return nil, err
		}
		class := security.DataClassStream
		if typ, _ := v.Dict.GetName("Type"); typ == "Metadata" {
			class = security.DataClassMetadataStream
		}
		enc, err := h.EncryptWithFilter(ref.Num, ref.Gen, data, class, cryptFilterName(v.Dict))
		if err != nil {
			return nil, fmt.Errorf("encrypt stream %s: %w", ref, err)
		}
		dictObj, err := encryptObject(v.Dict, ref, h)
		if err != nil {
			return nil, err
		}
		out := raw.NewStream(dictObj.(*raw.DictObj), nil)
		out.SetData(enc)
		return out, nil
	}
	return obj, nil
}

func cryptFilterName(dict *raw.DictObj) string {
	names, params := filters.ExtractFilters(dict)
	for i, name := range names {
		if name != "Crypt" {
			continue
		}
		if n, ok := params[i].GetName("Name"); ok {
			return n
		}
		return "Identity"
	}
	return ""
}

func idArray(ids [2][]byte) *raw.ArrayObj {
	return raw.NewArray(raw.HexStr(ids[0]), raw.HexStr(ids[1]))
}
