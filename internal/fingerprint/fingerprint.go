// Package fingerprint derives a device description from the browser
// environment reported by a client. Everything here is deterministic and
// performs no I/O.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	ua "github.com/mileusna/useragent"
	"golang.org/x/crypto/blake2b"
)

const Unknown = "Unknown"

// Environment is what the browser can tell us about itself.
type Environment struct {
	UserAgent      string  `json:"user_agent"`
	Platform       string  `json:"platform"`
	ScreenWidth    int     `json:"screen_width"`
	ScreenHeight   int     `json:"screen_height"`
	PixelRatio     float64 `json:"pixel_ratio"`
	ColorDepth     int     `json:"color_depth"`
	Timezone       string  `json:"timezone"`
	Language       string  `json:"language"`
	ConnectionType string  `json:"connection_type"`
	MaxTouchPoints int     `json:"max_touch_points"`
	IPAddress      string  `json:"ip_address,omitempty"`
}

type Device struct {
	Name             string
	Type             string
	OSName           string
	OSVersion        string
	BrowserName      string
	BrowserVersion   string
	ScreenResolution string
	Timezone         string
	Language         string
	Fingerprint      string
}

const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeBot     = "bot"
)

func Describe(env Environment) Device {
	parsed := ua.Parse(env.UserAgent)
	osName, osVersion := operatingSystem(env, parsed)
	return Device{
		Name:             DeviceName(env),
		Type:             deviceType(env, parsed),
		OSName:           osName,
		OSVersion:        osVersion,
		BrowserName:      orUnknown(parsed.Name),
		BrowserVersion:   orUnknown(parsed.Version),
		ScreenResolution: resolution(env),
		Timezone:         orUnknown(env.Timezone),
		Language:         orUnknown(env.Language),
		Fingerprint:      Hash(env),
	}
}

// DeviceName maps the user agent and platform onto a human readable device
// label.
func DeviceName(env Environment) string {
	agent := env.UserAgent
	platform := strings.ToLower(env.Platform)
	switch {
	case strings.Contains(agent, "iPhone"):
		return "iPhone"
	case strings.Contains(agent, "iPad"):
		return "iPad"
	// iPadOS reports itself as a Mac; touch support gives it away.
	case strings.Contains(agent, "Macintosh") && env.MaxTouchPoints > 1:
		return "iPad"
	case strings.Contains(agent, "Android") && !strings.Contains(agent, "Mobile"):
		return "Android Tablet"
	case strings.Contains(agent, "Android"):
		return "Android Device"
	case strings.Contains(agent, "CrOS"):
		return "Chromebook"
	case strings.Contains(agent, "Macintosh") || strings.HasPrefix(platform, "mac"):
		return "Mac"
	case strings.Contains(agent, "Windows") || strings.HasPrefix(platform, "win"):
		return "Windows PC"
	case strings.Contains(agent, "Linux") || strings.HasPrefix(platform, "linux"):
		return "Linux PC"
	default:
		return "Unknown Device"
	}
}

func deviceType(env Environment, parsed ua.UserAgent) string {
	switch {
	case parsed.Bot:
		return TypeBot
	case parsed.Tablet, strings.Contains(env.UserAgent, "iPad"),
		strings.Contains(env.UserAgent, "Macintosh") && env.MaxTouchPoints > 1:
		return TypeTablet
	case parsed.Mobile:
		return TypeMobile
	case env.UserAgent == "":
		return Unknown
	default:
		return TypeDesktop
	}
}

func operatingSystem(env Environment, parsed ua.UserAgent) (string, string) {
	name := parsed.OS
	if name == "" {
		switch p := strings.ToLower(env.Platform); {
		case strings.HasPrefix(p, "win"):
			name = ua.Windows
		case strings.HasPrefix(p, "mac"):
			name = ua.MacOS
		case strings.HasPrefix(p, "linux"):
			name = ua.Linux
		case p == "iphone" || p == "ipad":
			name = ua.IOS
		}
	}
	return orUnknown(name), orUnknown(parsed.OSVersion)
}

func resolution(env Environment) string {
	if env.ScreenWidth <= 0 || env.ScreenHeight <= 0 {
		return Unknown
	}
	return fmt.Sprintf("%dx%d", env.ScreenWidth, env.ScreenHeight)
}

// Hash is a stable digest of the environment attributes that survive across
// page loads. The IP address is excluded so a roaming device keeps its
// fingerprint.
func Hash(env Environment) string {
	parts := []string{
		env.UserAgent,
		env.Platform,
		strconv.Itoa(env.ScreenWidth),
		strconv.Itoa(env.ScreenHeight),
		strconv.FormatFloat(env.PixelRatio, 'f', 2, 64),
		strconv.Itoa(env.ColorDepth),
		env.Timezone,
		env.Language,
		strconv.Itoa(env.MaxTouchPoints),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return Unknown
	}
	return strings.TrimSpace(v)
}
