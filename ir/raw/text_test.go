package raw

import "testing"

func TestTextStringRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		utf16 bool
	}{
		{name: "ascii", in: "Hello World"},
		{name: "latin1", in: "Café déjà vu"},
		{name: "pdfdoc specials", in: "€ • — ™ ﬁ"},
		{name: "cjk", in: "测试标题", utf16: true},
		{name: "emoji", in: "Title 🚀", utf16: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := EncodeText(tt.in)
			isUTF16 := len(enc) >= 2 && enc[0] == 0xFE && enc[1] == 0xFF
			if isUTF16 != tt.utf16 {
				t.Fatalf("utf16 = %v, want %v (% x)", isUTF16, tt.utf16, enc)
			}
			if got := DecodeText(enc); got != tt.in {
				t.Fatalf("round trip = %q, want %q", got, tt.in)
			}
		})
	}
}

func TestDecodePDFDocEncoding(t *testing.T) {
	if got := DecodeText([]byte{0x80, 0xA0, 0x18}); got != "•€˘" {
		t.Fatalf("got %q", got)
	}
}
