// Copyright 2023 The Sasdata Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package charenc maps the SAS7BDAT header's character-set id onto a named
// encoding and provides legacy decoding for character cells whose bytes are
// not valid UTF-8. The id table is closed: new encodings are added by
// extending the table, never by consulting global state.
package charenc

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// DefaultName is the encoding assumed when the header id is unknown or
// zero. Windows-1252 is what SAS itself defaults to on western locales.
const DefaultName = "WINDOWS-1252"

// nameByID is the closed character-set table, keyed by the single-byte id
// at offset 70 of the file header.
var nameByID = map[uint8]string{
	0:   DefaultName,
	20:  "UTF-8",
	28:  "US-ASCII",
	29:  "ISO-8859-1",
	30:  "ISO-8859-2",
	31:  "ISO-8859-3",
	32:  "ISO-8859-4",
	33:  "ISO-8859-5",
	34:  "ISO-8859-6",
	35:  "ISO-8859-7",
	36:  "ISO-8859-8",
	37:  "ISO-8859-9",
	39:  "ISO-8859-11",
	40:  "ISO-8859-15",
	41:  "CP437",
	42:  "CP850",
	43:  "CP852",
	44:  "CP857",
	45:  "CP858",
	46:  "CP862",
	47:  "CP864",
	48:  "CP865",
	49:  "CP866",
	50:  "CP869",
	51:  "CP874",
	52:  "CP921",
	53:  "CP922",
	54:  "CP1129",
	55:  "CP720",
	56:  "CP737",
	57:  "CP775",
	58:  "CP860",
	59:  "CP863",
	60:  "WINDOWS-1250",
	61:  "WINDOWS-1251",
	62:  "WINDOWS-1252",
	63:  "WINDOWS-1253",
	64:  "WINDOWS-1254",
	65:  "WINDOWS-1255",
	66:  "WINDOWS-1256",
	67:  "WINDOWS-1257",
	68:  "WINDOWS-1258",
	69:  "MACROMAN",
	70:  "MACARABIC",
	71:  "MACHEBREW",
	72:  "MACGREEK",
	73:  "MACTHAI",
	75:  "MACTURKISH",
	76:  "MACUKRAINE",
	118: "CP950",
	119: "EUC-TW",
	123: "BIG-5",
	125: "GB18030",
	126: "WINDOWS-936",
	128: "CP1381",
	134: "EUC-JP",
	136: "CP949",
	137: "CP942",
	138: "CP932",
	140: "EUC-KR",
	141: "CP949",
	142: "CP949",
	163: "MACICELAND",
	167: "ISO-2022-JP",
	168: "ISO-2022-KR",
	169: "ISO-2022-CN",
	172: "ISO-2022-CN-EXT",
	204: DefaultName,
	205: "GB18030",
	227: "ISO-8859-14",
	242: "ISO-8859-13",
	245: "MACCROATIAN",
	246: "MACCYRILLIC",
	247: "MACROMANIA",
	248: "SHIFT_JISX0213",
}

// decoderByName maps encoding names onto x/text decoders. Names absent
// here (rare IBM code pages, most Mac variants) have no decoder; cells in
// such files are accepted only when they happen to be valid UTF-8.
var decoderByName = map[string]encoding.Encoding{
	"ISO-8859-1":   charmap.ISO8859_1,
	"ISO-8859-2":   charmap.ISO8859_2,
	"ISO-8859-3":   charmap.ISO8859_3,
	"ISO-8859-4":   charmap.ISO8859_4,
	"ISO-8859-5":   charmap.ISO8859_5,
	"ISO-8859-6":   charmap.ISO8859_6,
	"ISO-8859-7":   charmap.ISO8859_7,
	"ISO-8859-8":   charmap.ISO8859_8,
	"ISO-8859-9":   charmap.ISO8859_9,
	"ISO-8859-13":  charmap.ISO8859_13,
	"ISO-8859-14":  charmap.ISO8859_14,
	"ISO-8859-15":  charmap.ISO8859_15,
	"WINDOWS-1250": charmap.Windows1250,
	"WINDOWS-1251": charmap.Windows1251,
	"WINDOWS-1252": charmap.Windows1252,
	"WINDOWS-1253": charmap.Windows1253,
	"WINDOWS-1254": charmap.Windows1254,
	"WINDOWS-1255": charmap.Windows1255,
	"WINDOWS-1256": charmap.Windows1256,
	"WINDOWS-1257": charmap.Windows1257,
	"WINDOWS-1258": charmap.Windows1258,
	"CP437":        charmap.CodePage437,
	"CP850":        charmap.CodePage850,
	"CP852":        charmap.CodePage852,
	"CP858":        charmap.CodePage858,
	"CP860":        charmap.CodePage860,
	"CP862":        charmap.CodePage862,
	"CP863":        charmap.CodePage863,
	"CP865":        charmap.CodePage865,
	"CP866":        charmap.CodePage866,
	"CP874":        charmap.Windows874,
	"MACROMAN":     charmap.Macintosh,
	"MACCYRILLIC":  charmap.MacintoshCyrillic,
	"CP932":        japanese.ShiftJIS,
	"CP942":        japanese.ShiftJIS,
	"EUC-JP":       japanese.EUCJP,
	"ISO-2022-JP":  japanese.ISO2022JP,
	"EUC-KR":       korean.EUCKR,
	"CP949":        korean.EUCKR,
	"GB18030":      simplifiedchinese.GB18030,
	"WINDOWS-936":  simplifiedchinese.GBK,
	"BIG-5":        traditionalchinese.Big5,
	"CP950":        traditionalchinese.Big5,
}

// Lookup resolves the header character-set id to an encoding name. Unknown
// ids fall back to the default.
func Lookup(id uint8) string {
	if name, ok := nameByID[id]; ok {
		return name
	}
	return DefaultName
}

// Known reports whether the id appears in the closed table.
func Known(id uint8) bool {
	_, ok := nameByID[id]
	return ok
}

// A Decoder converts legacy-encoded cell bytes to UTF-8 strings. The zero
// value decodes nothing; obtain one from ForName.
type Decoder struct {
	name string
	enc  encoding.Encoding
}

// ForName returns a Decoder for the named encoding. The second result is
// false when the name is UTF-8/ASCII (no conversion needed) or has no
// x/text decoder.
func ForName(name string) (Decoder, bool) {
	enc, ok := decoderByName[name]
	if !ok {
		return Decoder{name: name}, false
	}
	return Decoder{name: name, enc: enc}, true
}

// Name returns the encoding name the decoder was built for.
func (d Decoder) Name() string { return d.name }

// Decode converts b to a UTF-8 string. Valid UTF-8 input is returned
// unchanged; otherwise the legacy decoder runs. The second result is false
// when no conversion was possible, in which case the caller decides whether
// that is an error (it is, once the bytes are known not to be UTF-8).
func (d Decoder) Decode(b []byte) (string, bool) {
	if utf8.Valid(b) {
		return string(b), true
	}
	if d.enc == nil {
		return "", false
	}
	out, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	return string(out), true
}
