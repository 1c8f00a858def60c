package render

import "strings"

type Segment struct {
	Text string
	Bold bool
}

// shortcodes is the full set of glyph substitutions. Glyphs already present
// in the text pass through untouched.
var shortcodes = map[string]string{
	":cart:":     "🛒",
	":check:":    "✅",
	":cross:":    "❌",
	":warning:":  "⚠️",
	":package:":  "📦",
	":hotel:":    "🏨",
	":food:":     "🍔",
	":money:":    "💰",
	":phone:":    "📱",
	":pin:":      "📍",
	":sparkles:": "✨",
	":tada:":     "🎉",
	":search:":   "🔍",
	":lock:":     "🔒",
}

var shortcodeReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, len(shortcodes)*2)
	for code, glyph := range shortcodes {
		pairs = append(pairs, code, glyph)
	}
	return strings.NewReplacer(pairs...)
}()

// Format applies shortcode substitution and splits *bold* runs. An unmatched
// asterisk is kept as a literal.
func Format(text string) []Segment {
	text = shortcodeReplacer.Replace(text)

	var out []Segment
	for {
		open := strings.IndexByte(text, '*')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(text[open+1:], '*')
		if closing < 0 {
			break
		}
		closing += open + 1
		if closing == open+1 {
			// "**" has nothing to emphasize.
			out = appendPlain(out, text[:closing+1])
			text = text[closing+1:]
			continue
		}
		out = appendPlain(out, text[:open])
		out = append(out, Segment{Text: text[open+1 : closing], Bold: true})
		text = text[closing+1:]
	}
	out = appendPlain(out, text)
	return out
}

func appendPlain(out []Segment, s string) []Segment {
	if s == "" {
		return out
	}
	if n := len(out); n > 0 && !out[n-1].Bold {
		out[n-1].Text += s
		return out
	}
	return append(out, Segment{Text: s})
}

// Plain joins segments without emphasis markers.
func Plain(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}
