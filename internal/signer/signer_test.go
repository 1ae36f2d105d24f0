package signer

import (
	"strings"
	"testing"
	"time"
)

var testCreds = Credentials{
	AccessKeyID:     "AKIDEXAMPLE",
	SecretAccessKey: "secret",
	SessionToken:    "session-token",
}

func signedRequest(payload []byte) Request {
	return Request{
		Method: "POST",
		URL:    "https://imagex.bytedanceapi.com/?Action=CommitImageUpload&Version=2018-08-01&ServiceId=abc",
		Headers: map[string]string{
			"x-amz-date":           "20260115T101500Z",
			"x-amz-security-token": testCreds.SessionToken,
		},
		Payload: payload,
		Region:  "cn-north-1",
		Service: "imagex",
	}
}

func TestAuthorizationDeterministic(t *testing.T) {
	req := signedRequest([]byte(`{"SessionKey":"sk"}`))
	first := Authorization(req, testCreds)
	second := Authorization(req, testCreds)
	if first == "" {
		t.Fatal("empty signature")
	}
	if first != second {
		t.Fatalf("same input produced different signatures:\n%s\n%s", first, second)
	}
}

func TestAuthorizationPayloadSensitive(t *testing.T) {
	base := Authorization(signedRequest([]byte(`{"SessionKey":"sk"}`)), testCreds)
	changed := Authorization(signedRequest([]byte(`{"SessionKey":"sl"}`)), testCreds)
	if base == changed {
		t.Fatal("changing a payload byte did not change the signature")
	}
}

func TestAuthorizationShape(t *testing.T) {
	header := Authorization(signedRequest(nil), testCreds)
	if !strings.HasPrefix(header, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260115/cn-north-1/imagex/aws4_request, ") {
		t.Fatalf("unexpected header prefix: %s", header)
	}
	if !strings.Contains(header, "SignedHeaders=host;x-amz-date;x-amz-security-token") {
		t.Fatalf("unexpected signed headers: %s", header)
	}
	if !strings.Contains(header, ", Signature=") {
		t.Fatalf("missing signature: %s", header)
	}
}

func TestAuthorizationQueryOrderIrrelevant(t *testing.T) {
	a := signedRequest(nil)
	b := signedRequest(nil)
	b.URL = "https://imagex.bytedanceapi.com/?Version=2018-08-01&ServiceId=abc&Action=CommitImageUpload"
	if Authorization(a, testCreds) != Authorization(b, testCreds) {
		t.Fatal("query parameter order changed the signature")
	}
}

func TestAuthorizationServiceScope(t *testing.T) {
	req := signedRequest(nil)
	imagex := Authorization(req, testCreds)
	req.Service = "vod"
	vod := Authorization(req, testCreds)
	if imagex == vod {
		t.Fatal("service name should be part of the scope")
	}
	if !strings.Contains(vod, "/vod/aws4_request") {
		t.Fatalf("vod scope missing: %s", vod)
	}
}

func TestAmzDate(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 15, 0, 0, time.UTC)
	if got := AmzDate(ts); got != "20260115T101500Z" {
		t.Fatalf("AmzDate = %q", got)
	}
}
