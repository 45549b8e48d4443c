package query

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokKeyword tokenKind = iota + 1
	tokIdentifier
	tokString
	tokNumber
	tokOperator
	tokSymbol
)

// keywords recognized by the tokenizer. Everything else alphanumeric is an
// identifier. Keywords are case-insensitive, identifiers keep their case.
var keywords = map[string]struct{}{
	"CREATE": {}, "KEYSPACE": {}, "TABLE": {}, "WITH": {}, "REPLICATION": {},
	"PRIMARY": {}, "KEY": {}, "USE": {}, "INSERT": {}, "INTO": {}, "VALUES": {},
	"UPDATE": {}, "SET": {}, "DELETE": {}, "SELECT": {}, "FROM": {}, "WHERE": {},
	"ORDER": {}, "BY": {}, "ASC": {}, "DESC": {}, "AND": {}, "OR": {}, "NOT": {},
}

type token struct {
	kind tokenKind
	text string
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// tokenize splits a statement into tokens. String literals are single-quoted;
// comparison operators are =, <, >, <= and >=.
func tokenize(input string) ([]token, error) {
	var tokens []token

	runes := []rune(input)
	i := 0

	for i < len(runes) {
		ch := runes[i]

		switch {
		case unicode.IsSpace(ch):
			i++

		case ch == '\'':
			i++
			start := i

			for i < len(runes) && runes[i] != '\'' {
				i++
			}

			if i == len(runes) {
				return nil, &ParseError{msg: "unterminated string literal"}
			}

			tokens = append(tokens, token{kind: tokString, text: string(runes[start:i])})
			i++

		case unicode.IsDigit(ch) || (ch == '-' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++

			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}

			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i])})

		case unicode.IsLetter(ch) || ch == '_':
			start := i

			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}

			word := string(runes[start:i])

			if _, ok := keywords[strings.ToUpper(word)]; ok {
				tokens = append(tokens, token{kind: tokKeyword, text: strings.ToUpper(word)})
			} else {
				tokens = append(tokens, token{kind: tokIdentifier, text: word})
			}

		case ch == '<' || ch == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{kind: tokOperator, text: string(ch) + "="})
				i += 2
			} else {
				tokens = append(tokens, token{kind: tokOperator, text: string(ch)})
				i++
			}

		case ch == '=':
			tokens = append(tokens, token{kind: tokOperator, text: "="})
			i++

		case strings.ContainsRune("(),;*{}:", ch):
			tokens = append(tokens, token{kind: tokSymbol, text: string(ch)})
			i++

		default:
			return nil, &ParseError{msg: fmt.Sprintf("unexpected character %q", ch)}
		}
	}

	return tokens, nil
}
