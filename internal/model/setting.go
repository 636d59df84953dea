package model

// Setting is a per-user key/value preference. Settings merge on Key.
type Setting struct {
	Meta
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingBaseCurrency names the reporting currency setting.
const SettingBaseCurrency = "base_currency"
