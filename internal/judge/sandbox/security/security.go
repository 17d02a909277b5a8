// Package security defines sandbox isolation and security profiles.
package security

// IsolationProfile describes namespace and seccomp settings.
type IsolationProfile struct {
	SeccompProfile string `json:"seccompProfile" yaml:"seccompProfile"`
	DisableNetwork bool   `json:"disableNetwork" yaml:"disableNetwork"`
}
