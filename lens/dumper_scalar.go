package lens

import (
	"io/fs"
	"math"
	"math/bits"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timeKeyRegex  = regexp.MustCompile(`(?i:time|date|created|updated|expires|deadline)|_at$|At$|^at$`)
	flagsKeyRegex = regexp.MustCompile(`(?i)(flags?|options?|settings?)$`)
	permKeyRegex  = regexp.MustCompile(`(?i)(perm|permissions?|filemode|mode)$`)
)

const (
	// plausible unix timestamp range, 2000-01-01 to 2100-01-01
	minTimestamp = 946684800
	maxTimestamp = 4102444800
)

func (rc *RenderContext) renderInt(v Int, key string) Fragment {
	var text string
	if v.Unsigned {
		text = strconv.FormatUint(v.U, 10)
	} else {
		text = strconv.FormatInt(v.V, 10)
	}
	f := Fragment{Text: rc.Style(text, RoleNumber)}
	if rc.cfg.Heuristics {
		f.Info = rc.intInfo(v, key)
	}
	return f
}

// intInfo returns the first matching annotation of an integer, or an empty string.
func (rc *RenderContext) intInfo(v Int, key string) string {
	switch v.Type {
	case "time.Duration":
		return time.Duration(v.V).String()
	case "fs.FileMode", "os.FileMode":
		return fs.FileMode(v.U).String()
	}
	if s := intSentinel(v); s != "" {
		return s
	}
	if key != "" && timeKeyRegex.MatchString(key) {
		if t, ok := timestampOf(v.V); ok {
			return t.In(rc.cfg.location()).Format("2006-01-02 15:04:05 MST")
		}
	}
	if v.Unsigned && v.U > math.MaxInt64 {
		return powerOfTwoInfo(v.U)
	} else if v.V < 0 {
		return ""
	}
	u := uint64(v.V)
	if key != "" && flagsKeyRegex.MatchString(key) && bits.OnesCount64(u) >= 2 {
		return flagsInfo(u)
	} else if key != "" && permKeyRegex.MatchString(key) && u > 0 && u <= 0o777 {
		return "0" + strconv.FormatUint(u, 8)
	}
	return powerOfTwoInfo(u)
}

func intSentinel(v Int) string {
	if v.Unsigned {
		switch v.U {
		case math.MaxUint64:
			return "max uint64"
		case math.MaxUint32:
			return "max uint32"
		}
		return ""
	}
	switch v.V {
	case math.MaxInt64:
		return "max int64"
	case math.MinInt64:
		return "min int64"
	case math.MaxInt32:
		return "max int32"
	case math.MinInt32:
		return "min int32"
	}
	return ""
}

// timestampOf interprets n as unix seconds or milliseconds when within the plausible range.
func timestampOf(n int64) (time.Time, bool) {
	switch {
	case n >= minTimestamp && n <= maxTimestamp:
		return time.Unix(n, 0), true
	case n >= minTimestamp*1000 && n <= maxTimestamp*1000:
		return time.UnixMilli(n), true
	}
	return time.Time{}, false
}

// flagsInfo decomposes a bit set into its powers of two, highest first.
func flagsInfo(u uint64) string {
	parts := make([]string, 0, bits.OnesCount64(u))
	for u != 0 {
		high := uint64(1) << (63 - bits.LeadingZeros64(u))
		parts = append(parts, strconv.FormatUint(high, 10))
		u &^= high
	}
	return strings.Join(parts, "|")
}

// powerOfTwoInfo annotates 2^n and 2^n-1 for n >= 8, smaller values are more readable as is.
func powerOfTwoInfo(u uint64) string {
	if u < 255 {
		return ""
	} else if bits.OnesCount64(u) == 1 {
		return "2^" + strconv.Itoa(bits.TrailingZeros64(u))
	} else if bits.OnesCount64(u+1) == 1 || u == math.MaxUint64 {
		return "2^" + strconv.Itoa(bits.Len64(u)) + "-1"
	}
	return ""
}

func (rc *RenderContext) renderFloat(v Float, key string) Fragment {
	f := Fragment{Text: rc.Style(formatFloat(v), RoleNumber)}
	if rc.cfg.Heuristics && key != "" && timeKeyRegex.MatchString(key) &&
		v.V >= minTimestamp && v.V <= maxTimestamp {
		sec, frac := math.Modf(v.V)
		t := time.Unix(int64(sec), int64(frac*1e9))
		f.Info = t.In(rc.cfg.location()).Format("2006-01-02 15:04:05.000 MST")
	}
	return f
}

// formatFloat renders a float, integral values always show one decimal so they read as floats.
func formatFloat(v Float) string {
	bitSize := v.Bits
	if bitSize != 32 {
		bitSize = 64
	}
	switch {
	case math.IsNaN(v.V):
		return "NaN"
	case math.IsInf(v.V, 1):
		return "+Inf"
	case math.IsInf(v.V, -1):
		return "-Inf"
	case v.V == math.Trunc(v.V) && math.Abs(v.V) < 1e15:
		return strconv.FormatFloat(v.V, 'f', 1, bitSize)
	}
	return strconv.FormatFloat(v.V, 'g', -1, bitSize)
}
