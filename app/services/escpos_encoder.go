package services

import (
	"bytes"
	"fmt"
	"strings"

	"LabelPrinter/app/models"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// ESC/POS Commands
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	NL  byte = 0x0A
)

// replacementByte stands in for characters the printer encoding lacks
const replacementByte = '?'

// encodingAliases covers common printer code page names missing from the
// IANA registry.
var encodingAliases = map[string]string{
	"cp1250": "windows-1250",
	"cp1251": "windows-1251",
	"cp1252": "windows-1252",
	"cp1258": "windows-1258",
	"utf8":   "utf-8",
}

// EscPosEncoder turns label copies into raw ESC/POS command streams. It is
// stateless after construction and safe for concurrent use.
type EscPosEncoder struct {
	name    string
	enc     encoding.Encoding
	charmap *charmap.Charmap
}

// NewEscPosEncoder creates an encoder writing text in the named byte
// encoding ("utf-8", "cp850", "windows-1258", ...). An empty name means
// UTF-8.
func NewEscPosEncoder(name string) (*EscPosEncoder, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "utf-8"
	}
	lookup := name
	if alias, ok := encodingAliases[name]; ok {
		lookup = alias
	}

	if lookup == "utf-8" {
		return &EscPosEncoder{name: name, enc: unicode.UTF8}, nil
	}

	enc, err := ianaindex.IANA.Encoding(lookup)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported printer encoding %q", name)
	}

	e := &EscPosEncoder{name: name, enc: enc}
	if cm, ok := enc.(*charmap.Charmap); ok {
		e.charmap = cm
	}
	return e, nil
}

// Name returns the configured encoding name
func (e *EscPosEncoder) Name() string {
	return e.name
}

// Encode builds the command stream for one copy. It never fails:
// characters the encoding cannot represent become '?'.
func (e *EscPosEncoder) Encode(orderID, customer string, boxIndex, boxTotal int) []byte {
	var b bytes.Buffer

	initPrinter(&b)

	setSize(&b, 2, 2)
	b.Write(e.text(orderID))
	lineFeed(&b)

	setSize(&b, 1, 1)
	b.Write(e.text(customer))
	lineFeed(&b)

	b.Write(e.text(fmt.Sprintf("BOX: #%d/%d", boxIndex, boxTotal)))
	lineFeed(&b)

	lineFeed(&b)
	lineFeed(&b)
	cut(&b)

	return b.Bytes()
}

// EncodeCopy builds the command stream for one copy of label, with the
// text fields cut to their printed length.
func (e *EscPosEncoder) EncodeCopy(label models.Label, c models.PrintCopy) []byte {
	return e.Encode(label.RenderedOrderID(), label.RenderedCustomer(), c.Index, c.Total)
}

// EncodeJob builds one payload per copy, in box index order
func (e *EscPosEncoder) EncodeJob(label models.Label) [][]byte {
	copies := label.Copies()
	payloads := make([][]byte, 0, len(copies))
	for _, c := range copies {
		payloads = append(payloads, e.EncodeCopy(label, c))
	}
	return payloads
}

func (e *EscPosEncoder) text(s string) []byte {
	if e.charmap != nil {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			if b, ok := e.charmap.EncodeRune(r); ok {
				out = append(out, b)
			} else {
				out = append(out, replacementByte)
			}
		}
		return out
	}

	if e.enc == unicode.UTF8 {
		return []byte(strings.ToValidUTF8(s, string(replacementByte)))
	}

	out, err := encoding.ReplaceUnsupported(e.enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return []byte(strings.Map(func(r rune) rune {
			if r < 0x80 {
				return r
			}
			return replacementByte
		}, s))
	}
	return out
}

func initPrinter(b *bytes.Buffer) {
	b.Write([]byte{ESC, '@'})
}

func setSize(b *bytes.Buffer, width, height byte) {
	size := ((width - 1) << 4) | (height - 1)
	b.Write([]byte{GS, '!', size})
}

func lineFeed(b *bytes.Buffer) {
	b.WriteByte(NL)
}

func cut(b *bytes.Buffer) {
	b.Write([]byte{GS, 'V', 0x00})
}
