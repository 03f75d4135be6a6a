package models

import (
	"sort"
	"strings"
)

const (
	CropTomato = "Tomato"
	CropPotato = "Potato"
	CropApple  = "Apple"

	DefaultLanguage     = "English"
	DefaultLanguageCode = "en"
)

// Crops lists the crop categories the classifier supports.
var Crops = []string{CropTomato, CropPotato, CropApple}

var defaultLanguages = map[string]string{
	"English":   "en",
	"Hindi":     "hi",
	"Telugu":    "te",
	"Tamil":     "ta",
	"Bengali":   "bn",
	"Marathi":   "mr",
	"Gujarati":  "gu",
	"Kannada":   "kn",
	"Malayalam": "ml",
	"Punjabi":   "pa",
}

// Catalog holds the supported crops and language labels.
type Catalog struct {
	crops     []string
	languages map[string]string
}

// NewCatalog builds the catalog, merging extra language label/code pairs into the defaults.
func NewCatalog(extraLanguages map[string]string) *Catalog {
	langs := make(map[string]string, len(defaultLanguages)+len(extraLanguages))
	for k, v := range defaultLanguages {
		langs[k] = v
	}
	for k, v := range extraLanguages {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		langs[k] = v
	}
	return &Catalog{crops: append([]string(nil), Crops...), languages: langs}
}

// CropSupported reports whether crop is a known category (exact label match).
func (c *Catalog) CropSupported(crop string) bool {
	for _, known := range c.crops {
		if known == crop {
			return true
		}
	}
	return false
}

// LanguageSupported reports whether language has a code.
func (c *Catalog) LanguageSupported(language string) bool {
	_, ok := c.languages[language]
	return ok
}

// LanguageCode maps a label to its ISO code, defaulting to English.
func (c *Catalog) LanguageCode(language string) string {
	if code, ok := c.languages[language]; ok {
		return code
	}
	return DefaultLanguageCode
}

// CropList returns the crops in display order.
func (c *Catalog) CropList() []string {
	return append([]string(nil), c.crops...)
}

// LanguageList returns the language labels, English first then alphabetical.
func (c *Catalog) LanguageList() []string {
	out := make([]string, 0, len(c.languages))
	for k := range c.languages {
		if k == DefaultLanguage {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	if _, ok := c.languages[DefaultLanguage]; ok {
		out = append([]string{DefaultLanguage}, out...)
	}
	return out
}
