package transcribe

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var supportedLanguages = []Language{
	{Code: "en-US", Name: "English (US)"},
	{Code: "en-GB", Name: "English (UK)"},
	{Code: "es-ES", Name: "Spanish (Spain)"},
	{Code: "es-US", Name: "Spanish (US)"},
	{Code: "fr-FR", Name: "French (France)"},
	{Code: "de-DE", Name: "German (Germany)"},
	{Code: "it-IT", Name: "Italian (Italy)"},
	{Code: "pt-BR", Name: "Portuguese (Brazil)"},
	{Code: "ru-RU", Name: "Russian (Russia)"},
	{Code: "ja-JP", Name: "Japanese (Japan)"},
	{Code: "ko-KR", Name: "Korean (Korea)"},
	{Code: "zh-CN", Name: "Chinese (Mandarin, Simplified)"},
	{Code: "hi-IN", Name: "Hindi (India)"},
	{Code: "ar-SA", Name: "Arabic (Saudi Arabia)"},
}

// SupportedLanguages returns a copy of the recognizer language list.
func SupportedLanguages() []Language {
	out := make([]Language, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

func IsSupported(code string) bool {
	for _, l := range supportedLanguages {
		if l.Code == code {
			return true
		}
	}
	return false
}
