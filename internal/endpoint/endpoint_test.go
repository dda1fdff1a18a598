package endpoint

import "testing"

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		name string
		e    Endpoint
		want string
	}{
		{
			name: "defaults",
			e:    Endpoint{Host: "localhost", Path: "socket", Transport: DefaultTransport},
			want: "http://localhost/socket/websocket",
		},
		{
			name: "port and secure scheme",
			e:    Endpoint{Host: "example.com", Port: 4000, Path: "/socket/", Transport: "websocket", Protocol: HTTPS},
			want: "https://example.com:4000/socket/websocket",
		},
		{
			name: "port overrides host port",
			e:    Endpoint{Host: "example.com:80", Port: 4000, Path: "socket", Protocol: WS},
			want: "ws://example.com:4000/socket",
		},
		{
			name: "sorted params",
			e: Endpoint{
				Host:      "localhost",
				Path:      "socket",
				Transport: "websocket",
				Params:    map[string]string{"vsn": "1.0.0", "token": "a b"},
			},
			want: "http://localhost/socket/websocket?token=a+b&vsn=1.0.0",
		},
		{
			name: "no path",
			e:    Endpoint{Host: "localhost", Protocol: WSS},
			want: "wss://localhost/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	e, err := Parse("ws://host:4000/socket?vsn=2.0.0")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if e.Host != "host" || e.Port != 4000 || e.Path != "socket" || e.Protocol != WS {
		t.Errorf("Parse = %+v", e)
	}
	if e.Params["vsn"] != "2.0.0" {
		t.Errorf("Params[vsn] = %q, want 2.0.0", e.Params["vsn"])
	}
	if got := e.URL(); got != "ws://host:4000/socket?vsn=2.0.0" {
		t.Errorf("URL() = %q, want round trip", got)
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{
		"ftp://host/socket",
		"ws:///socket",
		"://bad",
		"ws://host/socket?topic=a&topic=b",
	} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) expected error", raw)
		}
	}
}
