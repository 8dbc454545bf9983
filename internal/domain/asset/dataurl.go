package asset

import (
	"encoding/base64"
	"strings"
)

// ParseDataURL decodes data:<mime>[;params];base64,<payload>.
func ParseDataURL(s string) (string, []byte, error) {
	const op = "asset.ParseDataURL"

	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return "", nil, validationErr(op, "data_url must start with data:")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, validationErr(op, "data_url is missing the payload section")
	}

	params := strings.Split(header, ";")
	mime := NormalizeMime(params[0])
	if mime == "" || !strings.Contains(mime, "/") {
		return "", nil, validationErr(op, "data_url is missing the mime section")
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", nil, validationErr(op, "data_url must be base64 encoded")
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return "", nil, validationErr(op, "data_url is missing the payload section")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, validationErr(op, "data_url payload is not valid base64")
		}
	}
	if len(data) == 0 {
		return "", nil, validationErr(op, "data_url payload is empty")
	}
	return mime, data, nil
}
