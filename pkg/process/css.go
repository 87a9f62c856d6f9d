package process

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"sitemirror/pkg/models"
)

// ScrapeCSS rewrites url(), @import and @font-face references in a stylesheet.
// It never fails: unparseable input yields whatever references the lexer
// recognises, and the original text when nothing was rewritten.
func (s *Scraper) ScrapeCSS(text, currentPath string) models.RewriteResult {
	body, paths := s.rewriteCSS(text, currentPath)
	return models.RewriteResult{Body: body, Paths: paths}
}

// rewriteCSS copies the token stream, substituting url() tokens and the string
// operand of @import. Strings and comments are single tokens, so references
// inside them are never touched.
func (s *Scraper) rewriteCSS(text, currentPath string) (string, []string) {
	lexer := css.NewLexer(parse.NewInputString(text))

	var (
		b        strings.Builder
		paths    []string
		consumed int
		changed  bool
		atImport bool
	)
	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			break
		}
		consumed += len(data)

		out := data
		switch tt {
		case css.URLToken:
			if ref, ok := s.rewriteToken(data, urlValue, currentPath); ok {
				paths = append(paths, ref.discovered)
				out = ref.token
			}
			atImport = false
		case css.StringToken:
			if atImport {
				if ref, ok := s.rewriteToken(data, stringValue, currentPath); ok {
					paths = append(paths, ref.discovered)
					out = ref.token
				}
			}
			atImport = false
		case css.AtKeywordToken:
			atImport = bytes.EqualFold(data, []byte("@import"))
		case css.WhitespaceToken, css.CommentToken:
		default:
			atImport = false
		}

		if !bytes.Equal(out, data) {
			changed = true
		}
		b.Write(out)
	}

	// A lexer error or a token stream that does not cover the input would lose text
	if !changed || lexer.Err() != io.EOF || consumed != len(text) {
		return text, paths
	}
	return b.String(), paths
}

type rewrittenRef struct {
	discovered string
	token      []byte
}

// valueSpan locates the reference inside a token: start and end offsets of the
// raw value and the quote character around it, 0 when unquoted.
type valueSpan func(token []byte) (start, end int, quote byte, ok bool)

func (s *Scraper) rewriteToken(token []byte, span valueSpan, currentPath string) (rewrittenRef, bool) {
	start, end, quote, ok := span(token)
	if !ok {
		return rewrittenRef{}, false
	}
	discovered, replacement, ok := s.rewrite(currentPath, unescapeCSS(string(token[start:end])))
	if !ok {
		return rewrittenRef{}, false
	}

	out := make([]byte, 0, len(token)-(end-start)+len(replacement))
	out = append(out, token[:start]...)
	out = append(out, escapeCSS(replacement, quote)...)
	out = append(out, token[end:]...)
	return rewrittenRef{discovered: discovered, token: out}, true
}

// urlValue finds the value of a url(...) token, quoted or not
func urlValue(token []byte) (int, int, byte, bool) {
	open := bytes.IndexByte(token, '(')
	if open < 0 {
		return 0, 0, 0, false
	}
	start := open + 1
	end := len(token)
	if end > start && token[end-1] == ')' {
		end--
	}
	for start < end && isCSSSpace(token[start]) {
		start++
	}
	for end > start && isCSSSpace(token[end-1]) {
		end--
	}
	if end-start >= 2 && (token[start] == '"' || token[start] == '\'') && token[end-1] == token[start] {
		return start + 1, end - 1, token[start], true
	}
	return start, end, 0, end > start
}

// stringValue finds the contents of a quoted string token
func stringValue(token []byte) (int, int, byte, bool) {
	if len(token) < 2 || (token[0] != '"' && token[0] != '\'') {
		return 0, 0, 0, false
	}
	end := len(token)
	if token[end-1] == token[0] {
		end--
	}
	return 1, end, token[0], true
}

func isCSSSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// unescapeCSS resolves backslash escapes: hex code points of up to six digits
// followed by an optional space, and escaped literal characters.
func unescapeCSS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		if !isHex(s[i]) {
			if s[i] != '\n' {
				b.WriteByte(s[i])
			}
			continue
		}
		j := i
		for j < len(s) && j-i < 6 && isHex(s[j]) {
			j++
		}
		cp, _ := strconv.ParseUint(s[i:j], 16, 32)
		if cp == 0 || cp > 0x10FFFF {
			cp = 0xFFFD
		}
		b.WriteRune(rune(cp))
		if j < len(s) && isCSSSpace(s[j]) {
			j++
		}
		i = j - 1
	}
	return b.String()
}

// escapeCSS makes a replacement safe to put back into its token. Unquoted url()
// values escape the characters that would end or break the token.
func escapeCSS(s string, quote byte) []byte {
	var b bytes.Buffer
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case quote != 0 && c == quote:
			b.WriteByte('\\')
			b.WriteByte(c)
		case quote == 0 && (c == '(' || c == ')' || c == '"' || c == '\'' || isCSSSpace(c)):
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.Bytes()
}
