package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wudi/pdfcodec/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func predictorParams(predictor, columns int64) *raw.DictObj {
	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(predictor))
	params.Set("Colors", raw.NumberInt(1))
	params.Set("BitsPerComponent", raw.NumberInt(8))
	params.Set("Columns", raw.NumberInt(columns))
	return params
}

func TestFlateDecode(t *testing.T) {
	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateEncodeRoundTrip(t *testing.T) {
	input := bytes.Repeat([]byte("BT /F1 12 Tf (abc) Tj ET\n"), 50)
	enc, err := FlateEncode(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(enc) >= len(input) {
		t.Fatalf("expected compression, got %d >= %d", len(enc), len(input))
	}
	out, err := NewFlateDecoder().Decode(context.Background(), enc, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip mismatch")
	}
}

func TestFlateDecodeTruncatedKeepsPrefix(t *testing.T) {
	input := bytes.Repeat([]byte("0123456789"), 2000)
	var buf bytes.Buffer
	w, _ := zlib.NewWriterLevel(&buf, flate.NoCompression)
	w.Write(input)
	w.Close()
	truncated := buf.Bytes()[:buf.Len()/2]

	out, err := NewFlateDecoder().Decode(context.Background(), truncated, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(out) == 0 || !bytes.HasPrefix(input, out) {
		t.Fatalf("expected a prefix of the input, got %d bytes", len(out))
	}
}

func TestFlateDecodeWithPNGPredictor(t *testing.T) {
	// Two rows of three bytes: Sub filter, then Up filter.
	rows := []byte{1, 10, 2, 10, 2, 1, 1, 1}
	out, err := NewFlateDecoder().Decode(context.Background(), zlibBytes(t, rows), predictorParams(12, 3))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 12, 22, 11, 13, 23}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGPredictorAverageAndPaeth(t *testing.T) {
	rows := []byte{
		0, 100, 50,
		3, 10, 10, // avg: 10+(0+100)/2=60, 10+(60+50)/2=65
		4, 1, 1, // paeth: left=0 up=60 upleft=0 -> up: 61; left=61 up=65 upleft=60 -> p=66 -> up 65: 66
	}
	out, err := applyPredictor(rows, predictorParams(15, 2))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	want := []byte{100, 50, 60, 65, 61, 66}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestTIFFPredictor(t *testing.T) {
	out, err := applyPredictor([]byte{5, 1, 1, 7, 2, 2}, predictorParams(2, 3))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	if want := []byte{5, 6, 7, 7, 9, 11}; !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestLZWDecodeEarlyChangeZero(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	input := bytes.Repeat([]byte("hello hello hello "), 100)
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	params := raw.Dict()
	params.Set("EarlyChange", raw.NumberInt(0))
	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68 656c6c6f\n20776f726c64 3>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world0" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChainAndAbbreviations(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	hexOfFlate := []byte(bytesToHex(zlibBytes(t, []byte("chained"))) + ">")
	out, err := p.Decode(context.Background(), hexOfFlate, []string{"AHx", "Fl"}, nil)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("got %q", out)
	}
}

func TestPipelineDecodeStream(t *testing.T) {
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("FlateDecode")))
	s := raw.NewStream(dict, zlibBytes(t, []byte("payload")))
	out, err := NewDefaultPipeline(Limits{}).DecodeStream(context.Background(), s)
	if err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	if string(out) != "payload" {
		t.Fatalf("got %q", out)
	}
}

func TestPipelineLimits(t *testing.T) {
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 10, MaxDecodeTime: time.Second})
	_, err := p.Decode(context.Background(), zlibBytes(t, bytes.Repeat([]byte{'x'}, 100)), []string{"FlateDecode"}, nil)
	if !errors.Is(err, ErrSizeLimit) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	_, err := NewDefaultPipeline(Limits{}).Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractFiltersAlignsParams(t *testing.T) {
	dict := raw.Dict()
	dict.Set("Filter", raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	dict.Set("DecodeParms", raw.NewArray(raw.NullObj{}, predictorParams(12, 4)))
	names, params := ExtractFilters(dict)
	if len(names) != 2 || len(params) != 2 {
		t.Fatalf("got %v / %v", names, params)
	}
	if params[0] != nil || params[1] == nil {
		t.Fatalf("params not aligned: %v", params)
	}
}

func bytesToHex(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, 2*len(b))
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&15])
	}
	return string(out)
}
