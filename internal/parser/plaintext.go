package parser

import "strings"

// plaintextParser passes text uploads through untouched apart from
// normalizing line endings.
type plaintextParser struct{}

func (p *plaintextParser) Parse(data []byte) (Parsed, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return Parsed{Text: text}, nil
}
