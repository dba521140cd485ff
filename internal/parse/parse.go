// Package parse implements the numeric and string field decoders for the
// tab-separated input line format, plus a packed binary row encoding
// (EncodeRow/DecodeRow). The ingestor decodes fields with SplitLine and
// the Parse* functions directly and does not use the packed encoding.
package parse

import (
	"math"
)

// pow10 is a precomputed table of powers of ten up to 10^23, avoiding
// repeated math.Pow calls in the float-accumulation hot loop.
var pow10 = func() [24]float64 {
	var t [24]float64
	t[0] = 1
	for i := 1; i < len(t); i++ {
		t[i] = t[i-1] * 10
	}
	return t
}()

// ParseInt64 parses an optionally signed decimal integer, saturating at
// math.MaxInt64/MinInt64 on overflow instead of signalling an error.
// Cat-modeling inputs can carry absurdly large magnitudes that historical
// tooling coerced to the type extremum; this preserves that behavior.
func ParseInt64(field []byte) int64 {
	i, neg := signPrefix(field)
	var acc uint64
	overflow := false
	for ; i < len(field); i++ {
		c := field[i]
		if c < '0' || c > '9' {
			break
		}
		d := uint64(c - '0')
		if acc > (math.MaxUint64-d)/10 {
			overflow = true
			continue
		}
		acc = acc*10 + d
	}
	if neg {
		if overflow || acc > uint64(math.MaxInt64)+1 {
			return math.MinInt64
		}
		return -int64(acc)
	}
	if overflow || acc > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(acc)
}

// ParseInt32 is ParseInt64 saturated into the int32 range.
func ParseInt32(field []byte) int32 {
	v := ParseInt64(field)
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

// ParseUint64 parses an unsigned decimal integer, saturating at
// math.MaxUint64 on overflow. A leading '-' saturates to 0.
func ParseUint64(field []byte) uint64 {
	i := 0
	if i < len(field) && (field[i] == '+' || field[i] == '-') {
		if field[i] == '-' {
			return 0
		}
		i++
	}
	var acc uint64
	for ; i < len(field); i++ {
		c := field[i]
		if c < '0' || c > '9' {
			break
		}
		d := uint64(c - '0')
		if acc > (math.MaxUint64-d)/10 {
			return math.MaxUint64
		}
		acc = acc*10 + d
	}
	return acc
}

func signPrefix(field []byte) (int, bool) {
	if len(field) > 0 && (field[0] == '+' || field[0] == '-') {
		return 1, field[0] == '-'
	}
	return 0, false
}

// ParseFloat64 parses an optionally signed decimal with '.' or ','
// decimal separator and an optional e|E-prefixed signed exponent.
//
// The fractional part is not accumulated as integer_part*10^k +
// fraction/10^k once k reaches ten — that loses precision for long
// fractional runs. Instead, the first ten fractional digits are
// accumulated as an integer and divided by 10^10 once; every later digit
// is added directly in floating point as digit/10^position, with the
// digit counter k continuing to count the digit's position.
func ParseFloat64(field []byte) float64 {
	i := 0
	neg := false
	if i < len(field) && (field[i] == '+' || field[i] == '-') {
		neg = field[i] == '-'
		i++
	}

	var intPart float64
	for i < len(field) && field[i] >= '0' && field[i] <= '9' {
		intPart = intPart*10 + float64(field[i]-'0')
		i++
	}

	var fracPart float64
	if i < len(field) && (field[i] == '.' || field[i] == ',') {
		i++
		k := 0
		fracAccum := 0.0 // fraction/10^k once k >= 10
		intDigits := uint64(0)
		for i < len(field) && field[i] >= '0' && field[i] <= '9' {
			if k < 10 {
				intDigits = intDigits*10 + uint64(field[i]-'0')
				k++
			} else {
				fracAccum += float64(field[i]-'0') / scale10(k+1)
				k++
			}
			i++
		}
		if k <= 10 {
			fracPart = float64(intDigits) / scale10(k)
		} else {
			fracPart = float64(intDigits)/scale10(10) + fracAccum
		}
	}

	value := intPart + fracPart

	if i < len(field) && (field[i] == 'e' || field[i] == 'E') {
		i++
		expNeg := false
		if i < len(field) && (field[i] == '+' || field[i] == '-') {
			expNeg = field[i] == '-'
			i++
		}
		var exp int
		for i < len(field) && field[i] >= '0' && field[i] <= '9' {
			exp = exp*10 + int(field[i]-'0')
			i++
		}
		value *= powInt(10, exp, expNeg)
	}

	if neg {
		value = -value
	}
	return value
}

// scale10 returns 10^n using the precomputed table when in range.
func scale10(n int) float64 {
	if n >= 0 && n < len(pow10) {
		return pow10[n]
	}
	return math.Pow(10, float64(n))
}

func powInt(base float64, exp int, negExp bool) float64 {
	v := scale10(exp)
	if negExp {
		return 1 / v
	}
	return v
}

// SkipBOM strips a single leading UTF-8 byte-order mark, if present.
func SkipBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// trimSpace trims ASCII spaces/tabs from both ends of field by adjusting
// its bounds — no byte movement, since the backing array is shared with
// the caller's line buffer.
func trimSpace(field []byte) []byte {
	start := 0
	for start < len(field) && isSpace(field[start]) {
		start++
	}
	end := len(field)
	for end > start && isSpace(field[end-1]) {
		end--
	}
	return field[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}

// SplitLine splits line on sep, writing NUL over each separator byte and
// trimming surrounding spaces from each resulting field. The returned
// slices alias line's backing array.
func SplitLine(line []byte, sep byte) [][]byte {
	fields := make([][]byte, 0, 8)
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] == sep {
			fields = append(fields, trimSpace(line[start:i]))
			line[i] = 0
			start = i + 1
		}
	}
	fields = append(fields, trimSpace(line[start:]))
	return fields
}
