package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"unicode"

	"github.com/wudi/pdfcodec/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // 'stream' keyword
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, endstream, >>, ], etc.)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenStream:
		return "stream"
	case TokenInlineImage:
		return "inline-image"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

// Token is a lexical PDF token. Only the fields relevant to Type are set:
// Str for names and keywords, Bytes for strings, streams and inline images,
// Int/Float/IsInt for numbers, Int/Gen for references, Bool for booleans.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
	Pos   int64
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
	SetRecoveryLocation(loc recovery.Location)
}

type Config struct {
	MaxStringLength int64
	MaxNameLength   int
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	WindowSize      int64
	Recovery        recovery.Strategy
}

type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

var errSkipToken = errors.New("skip token")

// pdfScanner incrementally buffers PDF data from a ReaderAt in fixed-size windows.
type pdfScanner struct {
	reader        ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	chunkSize     int64
	eof           bool
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
}

// New returns a scanner reading from r.
func New(r ReaderAt, cfg Config) Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, chunkSize: chunk}
}

func (s *pdfScanner) Position() int64 { return s.pos }

// Seek moves to offset and resets nesting state.
func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 {
		return errors.New("seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	s.arrayDepth = 0
	s.dictDepth = 0
	s.nextStreamLen = -1
	return nil
}
func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	for {
		tok, err := s.next()
		if errors.Is(err, errSkipToken) {
			continue
		}
		return tok, err
	}
}

func (s *pdfScanner) next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			return s.atEOF()
		}
		return Token{}, err
	}
	if s.pos >= int64(len(s.data)) {
		return s.atEOF()
	}
	start := s.pos
	c := s.data[s.pos]
	// Structural tokens
	switch c {
	case '<':
		if s.peekAhead(1) == '<' { // dictionary start
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isAlpha(c) {
		return s.scanKeyword()
	}
	// Fallback single char keyword
	s.pos++
	return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
}

// atEOF closes containers left open at end of input when recovery allows it.
func (s *pdfScanner) atEOF() (Token, error) {
	if s.cfg.Recovery == nil {
		return Token{}, io.EOF
	}
	if s.arrayDepth > 0 {
		if err := s.recover(errors.New("unclosed array at EOF"), "array"); err != nil {
			return Token{}, err
		}
		s.arrayDepth--
		return Token{Type: TokenKeyword, Str: "]", Pos: s.pos}, nil
	}
	if s.dictDepth > 0 {
		if err := s.recover(errors.New("unclosed dictionary at EOF"), "dict"); err != nil {
			return Token{}, err
		}
		s.dictDepth--
		return Token{Type: TokenKeyword, Str: ">>", Pos: s.pos}, nil
	}
	return Token{}, io.EOF
}

// Helpers
func (s *pdfScanner) skipWSAndComments() error {
	for {
		if s.pos >= int64(len(s.data)) {
			if err := s.ensure(s.pos); err != nil {
				return err
			}
		}
		if s.pos >= int64(len(s.data)) {
			return io.EOF
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' { // comment
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				if s.pos >= int64(len(s.data)) {
					return io.EOF
				}
				if isEOL(s.data[s.pos]) {
					break
				}
			}
			continue
		}
		return nil
	}
}

func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.chunkSize)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	if n == 0 {
		s.eof = true
	}
	return nil
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isAlpha(c byte) bool      { return unicode.IsLetter(rune(c)) }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && isHex(s.peekAhead(1)) && isHex(s.peekAhead(2)) {
			s.pos++
			a := s.hexNibble()
			b := s.hexNibble()
			out.WriteByte((a << 4) | b)
		} else {
			out.WriteByte(c)
			s.pos++
		}
		if s.cfg.MaxNameLength > 0 && out.Len() > s.cfg.MaxNameLength {
			return Token{}, s.recover(errors.New("name too long"), "name")
		}
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *pdfScanner) hexNibble() byte {
	if s.pos >= int64(len(s.data)) {
		return 0
	}
	c := s.data[s.pos]
	s.pos++
	return fromHex(c)
}

func (s *pdfScanner) scanLiteralString() (Token, error) { /* PDF 7.3.4.2 */
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.pos >= int64(len(s.data)) {
			break
		}
		c := s.data[s.pos]
		if c == '\\' { // escape
			s.pos++
			if err := s.ensure(s.pos); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return Token{}, err
			}
			esc := s.data[s.pos]
			// Line continuation: backslash followed by EOL is ignored
			if esc == '\r' {
				s.pos++
				if s.peekAhead(0) == '\n' {
					s.pos++
				}
				continue
			}
			if esc == '\n' {
				s.pos++
				continue
			}
			// Octal escape up to 3 digits
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2; k++ {
					d := s.peekAhead(0)
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			s.pos++
			continue
		}
		if c == '(' {
			depth++
		}
		if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
		}
		// a bare CR or CRLF inside a literal is read as LF
		if c == '\r' {
			s.pos++
			if s.peekAhead(0) == '\n' {
				s.pos++
			}
			buf.WriteByte('\n')
		} else {
			buf.WriteByte(c)
			s.pos++
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			closed = true
			break
		}
		s.pos++
		if isWhitespace(c) {
			continue
		}
		hexbuf = append(hexbuf, c)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	// If odd number of nibbles, pad with 0
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		return Token{}, s.recover(errors.New("hex string too long"), "hex")
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

// skipEOL consumes a single CR, LF or CRLF at the current position.
func (s *pdfScanner) skipEOL() {
	switch s.peekAhead(0) {
	case '\r':
		s.pos++
		if s.peekAhead(0) == '\n' {
			s.pos++
		}
	case '\n':
		s.pos++
	}
}

// scanStream consumes bytes until the next 'endstream' keyword.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	if err := s.ensure(s.pos); err != nil && !errors.Is(err, io.EOF) {
		return Token{}, err
	}
	// PDF 7.3.8: stream keyword must be followed by EOL before data
	if s.pos >= int64(len(s.data)) || !isEOL(s.data[s.pos]) {
		if err := s.recover(errors.New("stream missing EOL before data"), "stream"); err != nil {
			return Token{}, err
		}
		if s.peekAhead(0) == ' ' {
			s.pos++
		}
	}
	s.skipEOL()
	dataStart := s.pos
	needle := []byte("endstream")

	// If caller provided expected length, use it
	if s.nextStreamLen >= 0 {
		l := s.nextStreamLen
		s.nextStreamLen = -1
		if s.cfg.MaxStreamLength > 0 && l > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		if l > 0 {
			if err := s.ensure(dataStart + l - 1); err != nil {
				if !errors.Is(err, io.EOF) {
					return Token{}, err
				}
				if recErr := s.recover(errors.New("stream ended before declared length"), "stream"); recErr != nil {
					return Token{}, recErr
				}
			}
		}
		if dataStart+l > int64(len(s.data)) {
			l = int64(len(s.data)) - dataStart
		}
		end := dataStart + l
		s.pos = end
		s.skipEOL()
		_ = s.skipWSAndComments()
		if s.hasAt(s.pos, needle) {
			payload := append([]byte(nil), s.data[dataStart:end]...)
			s.pos += int64(len(needle))
			return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
		}
		// declared length is wrong; fall back to searching for endstream
		if err := s.recover(errors.New("stream length does not reach endstream"), "stream"); err != nil {
			return Token{}, err
		}
		s.pos = dataStart
	}

	idx := -1
	for i := dataStart; ; i++ {
		if err := s.ensure(i + int64(len(needle)) - 1); err != nil {
			if !errors.Is(err, io.EOF) {
				return Token{}, err
			}
		}
		if i+int64(len(needle)) > int64(len(s.data)) {
			break
		}
		if s.cfg.MaxStreamScan > 0 && i-dataStart > s.cfg.MaxStreamScan {
			if recErr := s.recover(errors.New("endstream not found within scan limit"), "stream"); recErr != nil {
				return Token{}, recErr
			}
			break
		}
		if s.data[i] != 'e' {
			continue
		}
		if !s.hasAt(i, needle) || !hasStreamBreakBefore(s.data, i, dataStart) {
			continue
		}
		after := i + int64(len(needle))
		if err := s.ensure(after); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if after >= int64(len(s.data)) || isDelimiter(s.data[after]) {
			idx = int(i)
			break
		}
		if s.cfg.MaxStreamLength > 0 && i-dataStart > s.cfg.MaxStreamLength {
			return Token{}, s.recover(errors.New("stream too long"), "stream")
		}
	}
	if idx == -1 {
		payload := append([]byte(nil), s.data[dataStart:]...)
		if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
			return Token{}, s.recover(errors.New("stream too long"), "stream")
		}
		if s.cfg.MaxStreamScan > 0 && int64(len(payload)) > s.cfg.MaxStreamScan {
			if recErr := s.recover(errors.New("endstream not found within scan limit"), "stream"); recErr != nil {
				return Token{}, recErr
			}
		} else if recErr := s.recover(errors.New("endstream not found"), "stream"); recErr != nil {
			return Token{}, recErr
		}
		s.pos = int64(len(s.data))
		return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
	}
	// Trim EOL before marker
	end := idx
	if end > int(dataStart) && s.data[end-1] == '\n' {
		end--
	}
	if end > int(dataStart) && s.data[end-1] == '\r' {
		end--
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
		return Token{}, s.recover(errors.New("stream too long"), "stream")
	}
	s.pos = int64(idx + len(needle))
	return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
}

func (s *pdfScanner) hasAt(i int64, needle []byte) bool {
	if err := s.ensure(i + int64(len(needle)) - 1); err != nil {
		return false
	}
	return bytes.Equal(s.data[i:i+int64(len(needle))], needle)
}

// scanInlineImage consumes bytes after the ID keyword until the first EOL-terminated EI delimiter.
// This is a content-stream-only construct; scanner does not interpret params.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	if err := s.ensure(s.pos); err != nil {
		if errors.Is(err, io.EOF) {
			return Token{}, s.recover(errors.New("unterminated inline image"), "inline_image")
		}
		return Token{}, err
	}
	if !isWhitespace(s.data[s.pos]) {
		return Token{}, s.recover(errors.New("inline image missing required whitespace after ID"), "inline_image")
	}
	s.pos++
	// Optional EOL immediately after ID whitespace does not belong to data.
	s.skipEOL()
	dataStart := s.pos
	for {
		if err := s.ensure(s.pos + 1); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		if s.pos+1 >= int64(len(s.data)) {
			return Token{}, s.recover(errors.New("unterminated inline image"), "inline_image")
		}
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' {
			lineBreakBefore := s.pos > dataStart && isEOL(s.data[s.pos-1])
			nextOK := true
			if after := s.peekAhead(2); after != 0 || s.pos+2 < int64(len(s.data)) {
				nextOK = isDelimiter(after)
			}
			if lineBreakBefore && nextOK {
				payload := append([]byte(nil), s.data[dataStart:s.pos]...)
				if s.cfg.MaxInlineImage > 0 && int64(len(payload)) > s.cfg.MaxInlineImage {
					return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
				}
				s.pos += 2
				return s.emit(Token{Type: TokenInlineImage, Bytes: payload, Pos: start})
			}
		}
		s.pos++
		if s.cfg.MaxInlineImage > 0 && s.pos-dataStart > s.cfg.MaxInlineImage {
			return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
		}
	}
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

// peekAhead returns the byte n positions ahead, or 0 past the end of input.
func (s *pdfScanner) peekAhead(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	var buf bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		buf.WriteByte(c)
		s.pos++
	}
	kw := buf.String()
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID": // inline image data; caller should have parsed image dict already
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1Str := s.scanNumberString()
	if num1Str == "" {
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start})
	}
	if isUnsigned(num1Str) {
		afterFirst := s.pos
		_ = s.skipWSAndComments()
		num2Str := s.scanNumberString()
		if num2Str != "" && isUnsigned(num2Str) {
			_ = s.skipWSAndComments()
			if s.peekAhead(0) == 'R' {
				next := s.peekAhead(1)
				if next == 0 || isDelimiter(next) {
					s.pos++
					n1, _ := strconv.ParseInt(num1Str, 10, 64)
					n2, _ := strconv.Atoi(num2Str)
					return Token{Type: TokenRef, Int: n1, Gen: n2, Pos: start}, nil
				}
			}
		}
		// not a ref; the parser reads the second number later
		s.pos = afterFirst
	}
	if i, err := strconv.ParseInt(num1Str, 10, 64); err == nil {
		return s.emit(Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start})
	}
	f, err := strconv.ParseFloat(num1Str, 64)
	if err != nil {
		if recErr := s.recover(errors.New("malformed number "+strconv.Quote(num1Str)), "number"); recErr != nil {
			return Token{}, recErr
		}
		f = 0
	}
	return s.emit(Token{Type: TokenNumber, Float: f, Pos: start})
}

func isUnsigned(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	var buf bytes.Buffer
	seenDigit := false
	for {
		if err := s.ensure(s.pos); err != nil {
			break
		}
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			buf.WriteByte(c)
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return buf.String()
}

// recover consults the recovery strategy. A nil return means the caller may continue.
func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	switch s.cfg.Recovery.OnError(context.Background(), err, location) {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	default:
		return err
	}
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, s.recover(errors.New("array depth exceeded"), "array")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, s.recover(errors.New("dict depth exceeded"), "dict")
		}
	case TokenKeyword:
		if tok.Str == "]" {
			if s.arrayDepth == 0 {
				if err := s.recover(errors.New("array depth underflow"), "array"); err != nil {
					return Token{}, err
				}
				return Token{}, errSkipToken
			}
			s.arrayDepth--
		}
		if tok.Str == ">>" {
			if s.dictDepth == 0 {
				if err := s.recover(errors.New("dict depth underflow"), "dict"); err != nil {
					return Token{}, err
				}
				return Token{}, errSkipToken
			}
			s.dictDepth--
		}
	}
	return tok, nil
}

// hasStreamBreakBefore returns true if the position i in data is preceded by a line break or whitespace boundary,
// making it a safe candidate for an endstream marker.
func hasStreamBreakBefore(data []byte, i int64, dataStart int64) bool {
	if i == dataStart {
		return true
	}
	return isWhitespace(data[i-1])
}
