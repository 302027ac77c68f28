package code

import (
	"errors"
	"strings"
)

// lang stores the English and Chinese text of a code
// lang 存储响应码的英文与中文文本
type lang struct {
	en    string // English // 英文
	zh_cn string // Chinese // 中文
}

const FALLBACK_LNG = "en"

// Default language is English // 默认语言为英文
var lng = FALLBACK_LNG

var supportedLanguages = []string{"en", "zh_cn"}

// GetMessage returns the message in the current language, falling back to English
// GetMessage 返回当前语言的消息，缺失时回退到英文
func (l lang) GetMessage() string {
	if lng == "zh_cn" && l.zh_cn != "" {
		return l.zh_cn
	}
	return l.en
}

// GetSupportedLanguages returns the supported language keys
// GetSupportedLanguages 返回支持的语言
func GetSupportedLanguages() []string {
	return append([]string{}, supportedLanguages...)
}

// SetGlobalDefaultLang sets the global language; unknown values reset to English
// SetGlobalDefaultLang 设置全局语言，不支持的语言回退为英文
func SetGlobalDefaultLang(language string) error {
	language = strings.ReplaceAll(strings.ToLower(language), "-", "_")
	for _, l := range supportedLanguages {
		if l == language {
			lng = language
			return nil
		}
	}
	lng = FALLBACK_LNG
	return errors.New("unsupported language type, set defaulting to " + FALLBACK_LNG)
}
