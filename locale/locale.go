// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package locale provides the widget's user facing text in French, Arabic
// and English.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/propmap/propmap/mapview"
)

// Supported lists the available languages; the first is the fallback.
var Supported = []language.Tag{language.French, language.Arabic, language.English}

var messages = map[string]map[language.Tag]string{
	mapview.MsgLoading: {
		language.French:  "Chargement de la carte…",
		language.Arabic:  "جارٍ تحميل الخريطة…",
		language.English: "Loading map…",
	},
	mapview.MsgLoadError: {
		language.French:  "La carte n'a pas pu être chargée.",
		language.Arabic:  "تعذر تحميل الخريطة.",
		language.English: "The map could not be loaded.",
	},
	mapview.MsgCredentialError: {
		language.French:  "La clé d'accès à la carte a été refusée.",
		language.Arabic:  "تم رفض مفتاح الوصول إلى الخريطة.",
		language.English: "The map access key was rejected.",
	},
	mapview.MsgCredentialPrompt: {
		language.French:  "Saisissez une nouvelle clé d'accès.",
		language.Arabic:  "أدخل مفتاح وصول جديدًا.",
		language.English: "Enter a new access key.",
	},
	mapview.MsgReinitializing: {
		language.French:  "Rechargement de la carte…",
		language.Arabic:  "جارٍ إعادة تحميل الخريطة…",
		language.English: "Reloading map…",
	},
	mapview.MsgEmpty: {
		language.French:  "Aucune annonce à afficher.",
		language.Arabic:  "لا توجد إعلانات للعرض.",
		language.English: "No listings to show.",
	},
	mapview.MsgPopupSave: {
		language.French:  "Enregistrer",
		language.Arabic:  "حفظ",
		language.English: "Save",
	},
	mapview.MsgPopupMessage: {
		language.French:  "Contacter",
		language.Arabic:  "مراسلة",
		language.English: "Message",
	},
	mapview.MsgPopupDetails: {
		language.French:  "Voir l'annonce",
		language.Arabic:  "عرض الإعلان",
		language.English: "View listing",
	},
	mapview.MsgPopupPremium: {
		language.French:  "Premium",
		language.Arabic:  "مميز",
		language.English: "Premium",
	},
	mapview.MsgListingSale: {
		language.French:  "Vente",
		language.Arabic:  "بيع",
		language.English: "For sale",
	},
	mapview.MsgListingRent: {
		language.French:  "Location",
		language.Arabic:  "كراء",
		language.English: "For rent",
	},
}

var currency = map[language.Tag]string{
	language.French:  "%d DA",
	language.Arabic:  "%d د.ج",
	language.English: "DZD %d",
}

const priceKey = "price"

// Catalog resolves message keys per language.
type Catalog struct {
	cat     *catalog.Builder
	matcher language.Matcher
}

// New builds the catalog.
func New() *Catalog {
	b := catalog.NewBuilder(catalog.Fallback(Supported[0]))

	for key, byLang := range messages {
		for tag, msg := range byLang {
			_ = b.SetString(tag, key, msg)
		}
	}

	for tag, format := range currency {
		_ = b.SetString(tag, priceKey, format)
	}

	return &Catalog{cat: b, matcher: language.NewMatcher(Supported)}
}

// Match picks the best supported language for an Accept-Language header.
func (c *Catalog) Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Supported[0]
	}

	_, index, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return Supported[0]
	}

	return Supported[index]
}

func (c *Catalog) printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(c.cat))
}

// Message returns the text for key, or key itself when unknown.
func (c *Catalog) Message(tag language.Tag, key string) string {
	if _, ok := messages[key]; !ok {
		return key
	}

	return c.printer(tag).Sprintf(key)
}

// FormatPrice renders an amount in dinars with the language's grouping.
func (c *Catalog) FormatPrice(tag language.Tag, amount int64) string {
	return c.printer(tag).Sprintf(priceKey, amount)
}

// Localizer binds the catalog to one language for the widget.
func (c *Catalog) Localizer(tag language.Tag) mapview.Localizer {
	return localizer{c: c, tag: tag}
}

type localizer struct {
	c   *Catalog
	tag language.Tag
}

func (l localizer) Text(key string) string { return l.c.Message(l.tag, key) }

func (l localizer) Price(amount int64) string { return l.c.FormatPrice(l.tag, amount) }
