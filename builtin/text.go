package builtin

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"obi.dev/obi"
)

func strlen(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	s, err := stringArg(ctx, "strlen", args, 0)
	if err != nil {
		return nil, err
	}
	return ctx.NewNumber(float64(utf8.RuneCountInString(s))), nil
}

// Clamps a character index into [0, n]. NaN maps to zero.
func clampIndex(index float64, n int) int {
	if math.IsNaN(index) || index < 0 {
		return 0
	}
	if index > float64(n) {
		return n
	}
	return int(index)
}

// strslice(s, start, end) swaps the bounds when start > end.
func strslice(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	s, err := stringArg(ctx, "strslice", args, 0)
	if err != nil {
		return nil, err
	}
	start, err := numberArg(ctx, "strslice", args, 1)
	if err != nil {
		return nil, err
	}
	end, err := numberArg(ctx, "strslice", args, 2)
	if err != nil {
		return nil, err
	}

	runes := []rune(s)
	from := clampIndex(start, len(runes))
	to := clampIndex(end, len(runes))
	if from > to {
		from, to = to, from
	}
	return ctx.NewString(string(runes[from:to])), nil
}

var reFloatPrefix = regexp.MustCompile(`^[+-]?(?:Infinity|(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`)

// Parses the longest numeric prefix, or returns nil.
func parseFloat(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	s, ok := args[0].(*obi.String)
	if !ok {
		return nil, nil
	}
	prefix := reFloatPrefix.FindString(strings.TrimLeft(s.Data(), " \t\n\r"))
	if prefix == "" {
		return nil, nil
	}
	if strings.HasSuffix(prefix, "Infinity") {
		if strings.HasPrefix(prefix, "-") {
			return ctx.NewNumber(math.Inf(-1)), nil
		}
		return ctx.NewNumber(math.Inf(+1)), nil
	}
	number, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return nil, nil
	}
	return ctx.NewNumber(number), nil
}

func bytesConcat(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	a, err := bytesArg(ctx, "bytes_concat", args, 0)
	if err != nil {
		return nil, err
	}
	b, err := bytesArg(ctx, "bytes_concat", args, 1)
	if err != nil {
		return nil, err
	}
	result := make([]byte, 0, len(a)+len(b))
	result = append(result, a...)
	result = append(result, b...)
	return ctx.NewBytes(result), nil
}

func textEncode(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	s, err := stringArg(ctx, "text_encode", args, 0)
	if err != nil {
		return nil, err
	}
	return ctx.NewBytes([]byte(s)), nil
}

func textDecode(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	b, err := bytesArg(ctx, "text_decode", args, 0)
	if err != nil {
		return nil, err
	}
	return ctx.NewString(strings.ToValidUTF8(string(b), "�")), nil
}

// Accepts bytes or a string.
func binaryArg(ctx *obi.Context, name string, args []obi.Value, index int) ([]byte, error) {
	switch value := args[index].(type) {
	case *obi.Bytes:
		return value.Data(), nil
	case *obi.String:
		return []byte(value.Data()), nil
	}
	return nil, argError(ctx, name, index, "bytes or a string", args[index])
}

func base64Encode(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	b, err := binaryArg(ctx, "base64_encode", args, 0)
	if err != nil {
		return nil, err
	}
	return ctx.NewString(base64.StdEncoding.EncodeToString(b)), nil
}

func base64Decode(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	s, err := stringArg(ctx, "base64_decode", args, 0)
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ctx.Errorf(nil, "base64_decode: %v", err)
	}
	return ctx.NewBytes(b), nil
}

func sha256Hex(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	b, err := binaryArg(ctx, "sha256", args, 0)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return ctx.NewString(hex.EncodeToString(sum[:])), nil
}
