package document

import (
	"time"

	"github.com/wudi/pdfcodec/ir/raw"
)

// Info holds the text entries of the document information dictionary.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string
}

// Info reads the document information dictionary. A locked document
// reports empty values.
func (d *Document) Info() Info {
	if d.usable() != nil || d.raw.Locked {
		return Info{}
	}
	dict, _, _ := d.infoDict(false)
	if dict == nil {
		return Info{}
	}
	text := func(key string) string {
		v, _ := dict.Get(key)
		b, ok := raw.DerefString(d.raw, v)
		if !ok {
			return ""
		}
		return raw.DecodeText(b)
	}
	return Info{
		Title:    text("Title"),
		Author:   text("Author"),
		Subject:  text("Subject"),
		Keywords: text("Keywords"),
		Creator:  text("Creator"),
		Producer: text("Producer"),
	}
}

func (d *Document) SetTitle(title string) error { return d.SetInfo("Title", title) }

func (d *Document) SetAuthor(author string) error { return d.SetInfo("Author", author) }

// SetInfo stores value under key in the information dictionary, creating
// the dictionary when the document has none. /ModDate is updated as well.
func (d *Document) SetInfo(key, value string) error {
	if err := d.usable(); err != nil {
		return err
	}
	if d.raw.Locked {
		return ErrLocked
	}
	dict, ref, _ := d.infoDict(true)
	dict.Set(key, raw.TextString(value))
	dict.Set("ModDate", raw.Str([]byte(pdfDate(time.Now()))))
	if ref.IsZero() {
		// direct /Info lives in the trailer, which is always written
		return nil
	}
	d.raw.MarkModified(ref)
	return nil
}

// infoDict returns the information dictionary and its reference. With
// create set, a missing dictionary is added to the document.
func (d *Document) infoDict(create bool) (*raw.DictObj, raw.ObjectRef, bool) {
	v, ok := d.raw.Trailer.Get("Info")
	if ok {
		if r, isRef := v.(raw.RefObj); isRef {
			if dict, ok := raw.DerefDict(d.raw, r); ok {
				return dict, r.R, true
			}
		} else if dict, ok := v.(*raw.DictObj); ok {
			return dict, raw.ObjectRef{}, true
		}
	}
	if !create {
		return nil, raw.ObjectRef{}, false
	}
	dict := raw.Dict()
	dict.Set("Producer", raw.TextString("pdfcodec"))
	dict.Set("CreationDate", raw.Str([]byte(pdfDate(time.Now()))))
	ref := d.raw.Add(dict)
	d.raw.Trailer.Set("Info", raw.RefObj{R: ref})
	return dict, ref, true
}

// pdfDate formats t as a PDF date string, D:YYYYMMDDHHmmSS+HH'mm'.
func pdfDate(t time.Time) string {
	s := t.Format("D:20060102150405")
	_, off := t.Zone()
	if off == 0 {
		return s + "Z"
	}
	sign := byte('+')
	if off < 0 {
		sign = '-'
		off = -off
	}
	return s + string(sign) + twoDigits(off/3600) + "'" + twoDigits(off%3600/60) + "'"
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10%10), byte('0' + n%10)})
}
