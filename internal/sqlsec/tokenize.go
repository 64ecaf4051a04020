package sqlsec

import "strings"

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenOther
)

type token struct {
	kind tokenKind
	text string
}

// tokenize conservatively splits sql into word and non-word tokens per
// spec.md §4.2 step 2: uppercase, split on non-identifier runes, but keep
// string literals and --/* */ comments intact so keywords inside them never
// match. This mirrors the scanning discipline used by
// internal/config/validation.go's placeholderNames, generalized from
// placeholder extraction to full keyword tokenization.
func tokenize(sql string) []token {
	var tokens []token
	runes := []rune(sql)
	n := len(runes)
	i := 0

	flushWord := func(start, end int) {
		if end > start {
			tokens = append(tokens, token{kind: tokenWord, text: strings.ToUpper(string(runes[start:end]))})
		}
	}

	wordStart := -1
	for i < n {
		c := runes[i]

		switch {
		case c == '\'':
			if wordStart >= 0 {
				flushWord(wordStart, i)
				wordStart = -1
			}
			j := i + 1
			for j < n {
				if runes[j] == '\'' {
					if j+1 < n && runes[j+1] == '\'' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			tokens = append(tokens, token{kind: tokenOther, text: string(runes[i:j])})
			i = j

		case c == '-' && i+1 < n && runes[i+1] == '-':
			if wordStart >= 0 {
				flushWord(wordStart, i)
				wordStart = -1
			}
			j := i
			for j < n && runes[j] != '\n' {
				j++
			}
			tokens = append(tokens, token{kind: tokenOther, text: string(runes[i:j])})
			i = j

		case c == '/' && i+1 < n && runes[i+1] == '*':
			if wordStart >= 0 {
				flushWord(wordStart, i)
				wordStart = -1
			}
			j := i + 2
			for j+1 < n && !(runes[j] == '*' && runes[j+1] == '/') {
				j++
			}
			end := j + 2
			if end > n {
				end = n
			}
			tokens = append(tokens, token{kind: tokenOther, text: string(runes[i:end])})
			i = end

		case isIdentRune(c):
			if wordStart < 0 {
				wordStart = i
			}
			i++

		default:
			if wordStart >= 0 {
				flushWord(wordStart, i)
				wordStart = -1
			}
			i++
		}
	}
	if wordStart >= 0 {
		flushWord(wordStart, n)
	}

	return tokens
}

func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
