// Package signer computes the HMAC-chain request signature the vendor's
// upload subsystems (ImageX, VOD) require on apply and commit calls.
//
// The scheme is the familiar date-scoped canonical-request signature:
// a canonical request hash, a credential scope of date/region/service, and
// a signing key derived by chaining HMACs from the secret key. The signer is
// a pure function so identical inputs always produce identical output.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	algorithm   = "AWS4-HMAC-SHA256"
	terminator  = "aws4_request"
	headerDate  = "x-amz-date"
	headerSHA   = "x-amz-content-sha256"
	amzDateForm = "20060102T150405Z"
)

// Credentials is the temporary triple issued with an upload session.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Request describes one call to be signed. Headers must include x-amz-date;
// x-amz-security-token and x-amz-content-sha256 are signed when present.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Payload []byte
	Region  string
	Service string
}

// AmzDate formats t the way the x-amz-date header expects.
func AmzDate(t time.Time) string {
	return t.UTC().Format(amzDateForm)
}

// Authorization returns the authorization header value for req. The caller
// is responsible for rejecting malformed URLs and unset credentials before
// signing; for well-formed input this never fails.
func Authorization(req Request, creds Credentials) string {
	u, err := url.Parse(req.URL)
	if err != nil {
		return ""
	}

	service := req.Service
	if service == "" {
		service = "imagex"
	}

	amzDate := req.Headers[headerDate]
	shortDate := amzDate
	if len(shortDate) > 8 {
		shortDate = shortDate[:8]
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(u.Host, req.Headers)

	payloadHash := req.Headers[headerSHA]
	if payloadHash == "" {
		payloadHash = hashHex(req.Payload)
	}

	canonicalRequest := strings.Join([]string{
		strings.ToUpper(req.Method),
		canonicalPath(u),
		canonicalQuery(u),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{shortDate, req.Region, service, terminator}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	key := signingKey(creds.SecretAccessKey, shortDate, req.Region, service)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	return algorithm +
		" Credential=" + creds.AccessKeyID + "/" + scope +
		", SignedHeaders=" + signedHeaders +
		", Signature=" + signature
}

func canonicalPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.EscapedPath()
}

// canonicalQuery sorts parameters by key then value and re-encodes them with
// RFC 3986 escaping (space as %20, not +).
func canonicalQuery(u *url.URL) string {
	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, escape(k)+"="+escape(v))
		}
	}
	return strings.Join(parts, "&")
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// canonicalizeHeaders builds the canonical header block from the host plus
// every x-amz-* header supplied by the caller.
func canonicalizeHeaders(host string, headers map[string]string) (string, string) {
	canonical := map[string]string{"host": host}
	for k, v := range headers {
		lower := strings.ToLower(strings.TrimSpace(k))
		if strings.HasPrefix(lower, "x-amz-") {
			canonical[lower] = strings.TrimSpace(v)
		}
	}

	names := make([]string, 0, len(canonical))
	for k := range canonical {
		names = append(names, k)
	}
	sort.Strings(names)

	var block strings.Builder
	for _, name := range names {
		block.WriteString(name)
		block.WriteByte(':')
		block.WriteString(canonical[name])
		block.WriteByte('\n')
	}
	return block.String(), strings.Join(names, ";")
}

// signingKey chains HMACs from the secret key through date, region, service.
func signingKey(secret, shortDate, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), shortDate)
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, service)
	return hmacSHA256(k, terminator)
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
