package region

import "testing"

func TestFromToken(t *testing.T) {
	cases := []struct {
		name  string
		token string
		want  string
		intl  bool
	}{
		{name: "cn default", token: "abc123", want: CodeCN, intl: false},
		{name: "us prefix", token: "us-abc123", want: CodeUS, intl: true},
		{name: "hk prefix", token: "HK-abc123", want: CodeHK, intl: true},
		{name: "jp prefix", token: "jp-abc123", want: CodeJP, intl: true},
		{name: "sg prefix", token: "sg-abc123", want: CodeSG, intl: true},
		{name: "whitespace", token: "  us-abc  ", want: CodeUS, intl: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := FromToken(tc.token)
			if info.Code() != tc.want {
				t.Errorf("Code() = %q, want %q", info.Code(), tc.want)
			}
			if info.IsInternational != tc.intl {
				t.Errorf("IsInternational = %v, want %v", info.IsInternational, tc.intl)
			}
		})
	}
}

func TestStripPrefix(t *testing.T) {
	if got := StripPrefix("us-abc123"); got != "abc123" {
		t.Errorf("StripPrefix(us-) = %q", got)
	}
	if got := StripPrefix("abc123"); got != "abc123" {
		t.Errorf("StripPrefix(cn) = %q", got)
	}
}

func TestEndpointTable(t *testing.T) {
	cn := FromToken("token")
	if cn.BaseURL() != "https://jimeng.jianying.com" {
		t.Errorf("cn base = %q", cn.BaseURL())
	}
	if cn.SigningRegion() != "cn-north-1" {
		t.Errorf("cn signing region = %q", cn.SigningRegion())
	}
	if cn.AssistantID() != AssistantIDCN {
		t.Errorf("cn aid = %d", cn.AssistantID())
	}

	us := FromToken("us-token")
	if us.BaseURL() != "https://dreamina-api.us.capcut.com" {
		t.Errorf("us base = %q", us.BaseURL())
	}
	if us.CommerceURL() != "https://commerce.us.capcut.com" {
		t.Errorf("us commerce = %q", us.CommerceURL())
	}
	if us.SigningRegion() != "us-east-1" {
		t.Errorf("us signing region = %q", us.SigningRegion())
	}

	sg := FromToken("sg-token")
	if sg.ImageXHost() != "https://imagex-normal-sg.capcutapi.com" {
		t.Errorf("sg imagex = %q", sg.ImageXHost())
	}
	if sg.VODHost() != cn.VODHost() {
		t.Error("vod host should not vary per site")
	}
	if sg.AssistantID() != AssistantIDInternational {
		t.Errorf("sg aid = %d", sg.AssistantID())
	}
}
