package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TargetProfile - YAML-описание целевой страницы. Позволяет переключить
// сервис на другой дашборд без пересборки.
//
//	url: https://example.com/board
//	cookie:
//	  name: satoken
//	  domain: example.com
//	readiness:
//	  marker_text: "今日实时数据"
//	metrics: [成交金额, 核销金额]
type TargetProfile struct {
	DashboardID string `yaml:"dashboard_id"`
	URL         string `yaml:"url"`
	Cookie      struct {
		Name   string `yaml:"name"`
		Domain string `yaml:"domain"`
		Path   string `yaml:"path"`
	} `yaml:"cookie"`
	Readiness struct {
		MarkerText    string `yaml:"marker_text"`
		ValueSelector string `yaml:"value_selector"`
	} `yaml:"readiness"`
	Metrics []string `yaml:"metrics"`
	Prompt  string   `yaml:"prompt"`
}

// LoadProfile читает профиль из файла.
func LoadProfile(path string) (*TargetProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target profile %s: %w", path, err)
	}
	return ParseProfile(raw)
}

// ParseProfile разбирает YAML профиля. Неизвестные ключи считаются ошибкой.
func ParseProfile(raw []byte) (*TargetProfile, error) {
	var profile TargetProfile

	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&profile); err != nil {
		return nil, fmt.Errorf("invalid target profile: %w", err)
	}

	return &profile, nil
}

// ApplyTo переносит поля профиля в TargetConfig. Явно заданные
// переменные окружения имеют приоритет над профилем.
func (p *TargetProfile) ApplyTo(t *TargetConfig) {
	overlay := func(envKey string, dst *string, value string) {
		if value == "" || os.Getenv(envKey) != "" {
			return
		}
		*dst = value
	}

	overlay("DASHBOARD_ID", &t.DashboardID, p.DashboardID)
	overlay("TARGET_URL", &t.URL, p.URL)
	overlay("TARGET_COOKIE_NAME", &t.CookieName, p.Cookie.Name)
	overlay("TARGET_COOKIE_DOMAIN", &t.CookieDomain, p.Cookie.Domain)
	overlay("TARGET_COOKIE_PATH", &t.CookiePath, p.Cookie.Path)
	overlay("TARGET_MARKER_TEXT", &t.MarkerText, p.Readiness.MarkerText)
	overlay("TARGET_VALUE_SELECTOR", &t.ValueSelector, p.Readiness.ValueSelector)
	overlay("ANALYZER_PROMPT", &t.Prompt, strings.TrimSpace(p.Prompt))

	if len(p.Metrics) > 0 && os.Getenv("TARGET_METRICS") == "" {
		t.MetricNames = append([]string(nil), p.Metrics...)
	}
}
