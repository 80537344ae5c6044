package proxy

import "fmt"

// Settings holds the upstream proxy configuration used by carrier adapters
// when the provider blocks datacenter traffic.
type Settings struct {
	Enabled  bool
	Hostname string
	Port     int
	Username string
	Password string
}

// HasProxy reports whether a usable proxy endpoint is configured.
func (p Settings) HasProxy() bool {
	return p.Enabled && p.Hostname != "" && p.Port > 0
}

// HostPort returns the credential-less proxy URL, "http://host:port".
func (p Settings) HostPort() string {
	if !p.HasProxy() {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", p.Hostname, p.Port)
}

// FullURL returns the proxy URL with inline credentials when both the
// username and the password are set, HostPort otherwise.
func (p Settings) FullURL() string {
	if !p.HasProxy() {
		return ""
	}
	if p.Username != "" && p.Password != "" {
		return fmt.Sprintf("http://%s:%s@%s:%d", p.Username, p.Password, p.Hostname, p.Port)
	}
	return p.HostPort()
}
