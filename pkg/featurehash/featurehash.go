// Copyright (c) 2025 Sudo-Ivan
// Licensed under the MIT License

// Package featurehash decodes and encodes the compact drawing token carried by source
// permalinks: a stream of features, each a type character followed by delta-encoded
// coordinates and optional attribute and style lists.
package featurehash

import (
	"math"
	"net/url"
	"sort"
	"strings"
)

const (
	// Alphabet is the 64-symbol alphabet of the varint digits. Bit 6 of a digit's
	// index flags a continuation.
	Alphabet = ".-_!*ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abcdefghjkmnpqrstuvwxyz"

	// Precision scales decoded integers to coordinates.
	Precision = 0.1

	// Marker optionally prefixes a token.
	Marker = 'F'

	continuation = 0x20
	digitMask    = 0x1f

	segmentSep = '~'
	pairSep    = "'"
	kvSep      = "*"
)

// DecodedFeature is one feature read from a token. Style is nil when the feature had
// no style segment.
type DecodedFeature struct {
	Code       byte
	Geometry   Geometry
	Attributes map[string]string
	Style      map[string]string
}

// Result holds the features of a token in decode order. Trailing is the unparsed
// remainder when a feature block was not closed; decoding stops there.
type Result struct {
	Features []DecodedFeature
	Trailing string
}

// cursor is the running position shared by all features of one token.
type cursor struct {
	x, y int
}

// Decode reads every feature of token. It never fails: malformed blocks are skipped
// and an unterminated block ends decoding, leaving its text in Result.Trailing.
func Decode(token string) Result {
	var res Result
	rest := strings.TrimPrefix(token, string(Marker))
	var cur cursor

	for len(rest) > 0 {
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			res.Trailing = rest
			break
		}
		block := rest[:end+1]
		rest = rest[end+1:]

		if f, ok := decodeFeature(block, &cur); ok {
			res.Features = append(res.Features, f)
		}
	}
	return res
}

// decodeFeature parses "<code>(<coords>~<attrs>~<style>)".
func decodeFeature(block string, cur *cursor) (DecodedFeature, bool) {
	if len(block) < 3 || block[1] != '(' {
		return DecodedFeature{}, false
	}
	code := block[0]
	body := block[2 : len(block)-1]

	coordText, tail, hasTail := strings.Cut(body, string(segmentSep))
	f := DecodedFeature{
		Code: code,
		Geometry: Geometry{
			Kind:   KindFromCode(code),
			Points: decodePoints(coordText, cur),
		},
		Attributes: map[string]string{},
	}
	if !hasTail {
		return f, true
	}

	attrText, styleText, hasStyle := strings.Cut(tail, string(segmentSep))
	f.Attributes = parsePairs(attrText, true)
	if hasStyle {
		f.Style = parsePairs(styleText, false)
	}
	return f, true
}

func decodePoints(text string, cur *cursor) []Point {
	var pts []Point
	i := 0
	for i < len(text) {
		cur.x += zigzag(readVarint(text, &i))
		cur.y += zigzag(readVarint(text, &i))
		pts = append(pts, Point{float64(cur.x) * Precision, float64(cur.y) * Precision})
	}
	return pts
}

// readVarint reads 5-bit little-endian digits until one without the continuation bit.
// Characters outside the alphabet end the number and are consumed.
func readVarint(text string, i *int) int {
	result, shift := 0, 0
	for *i < len(text) {
		b := strings.IndexByte(Alphabet, text[*i])
		*i++
		if b < 0 {
			break
		}
		result |= (b & digitMask) << shift
		shift += 5
		if b < continuation {
			break
		}
	}
	return result
}

func zigzag(n int) int {
	if n&1 != 0 {
		return ^(n >> 1)
	}
	return n >> 1
}

// parsePairs reads "k*v'k*v". Parts that do not split into exactly one key and one
// value are ignored.
func parsePairs(text string, unescape bool) map[string]string {
	pairs := map[string]string{}
	for _, part := range strings.Split(text, pairSep) {
		if part == "" {
			continue
		}
		if unescape {
			if decoded, err := url.PathUnescape(part); err == nil {
				part = decoded
			}
		}
		kv := strings.Split(part, kvSep)
		if len(kv) != 2 {
			continue
		}
		pairs[kv[0]] = kv[1]
	}
	return pairs
}

// Encode writes features in the token format Decode reads, prefixed with Marker.
// Coordinates are rounded to Precision; attribute keys are written in sorted order.
func Encode(features []DecodedFeature) string {
	var b strings.Builder
	b.WriteByte(Marker)
	var cur cursor
	for _, f := range features {
		code := f.Code
		if code == 0 {
			code = f.Geometry.Kind.Code()
		}
		b.WriteByte(code)
		b.WriteByte('(')
		for _, p := range f.Geometry.Points {
			x := int(math.Round(p[0] / Precision))
			y := int(math.Round(p[1] / Precision))
			writeVarint(&b, unzigzag(x-cur.x))
			writeVarint(&b, unzigzag(y-cur.y))
			cur.x, cur.y = x, y
		}
		if len(f.Attributes) > 0 || f.Style != nil {
			b.WriteByte(segmentSep)
			b.WriteString(formatPairs(f.Attributes, escapeValue))
		}
		if f.Style != nil {
			b.WriteByte(segmentSep)
			b.WriteString(formatPairs(f.Style, func(s string) string { return s }))
		}
		b.WriteByte(')')
	}
	return b.String()
}

func unzigzag(n int) int {
	if n < 0 {
		return ^(n << 1)
	}
	return n << 1
}

func writeVarint(b *strings.Builder, n int) {
	for n >= continuation {
		b.WriteByte(Alphabet[continuation|(n&digitMask)])
		n >>= 5
	}
	b.WriteByte(Alphabet[n])
}

func formatPairs(pairs map[string]string, esc func(string) string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = esc(k) + kvSep + esc(pairs[k])
	}
	return strings.Join(parts, pairSep)
}

// escapeValue percent-encodes everything the token grammar reserves.
func escapeValue(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "~", "%7E")
}
