// Copyright 2025 The PropMap Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/propmap/propmap/utils/textutils"
)

// Localizer supplies user facing text. The widget itself never embeds a
// language.
type Localizer interface {
	Text(key string) string
	Price(amount int64) string
}

// Message keys used by the widget chrome.
const (
	MsgLoading          = "map.loading"
	MsgLoadError        = "map.error.load"
	MsgCredentialError  = "map.error.credential"
	MsgCredentialPrompt = "map.credential.prompt"
	MsgReinitializing   = "map.reinitializing"
	MsgEmpty            = "map.empty"
	MsgPopupSave        = "popup.save"
	MsgPopupMessage     = "popup.message"
	MsgPopupDetails     = "popup.details"
	MsgPopupPremium     = "popup.premium"
	MsgListingSale      = "listing.sale"
	MsgListingRent      = "listing.rent"
)

type keyLocalizer struct{}

func (keyLocalizer) Text(key string) string { return key }

func (keyLocalizer) Price(amount int64) string { return textutils.FormatInt(amount) }

const popupTemplate = `<div class="pm-popup" data-zone="root" data-entity="{{.ID}}">` +
	`<div class="pm-popup__title" data-zone="title">{{.Title}}</div>` +
	`<div class="pm-popup__price" data-zone="price">{{.Price}}</div>` +
	`<div class="pm-popup__meta" data-zone="meta">{{.City}}{{if .Type}} · {{.Type}}{{end}}` +
	`{{if .Premium}} <span class="pm-popup__badge" data-zone="badge">{{.Premium}}</span>{{end}}</div>` +
	`<div class="pm-popup__actions" data-zone="actions">` +
	`<button type="button" data-action="save" data-zone="save"><span data-zone="save-label">{{.Save}}</span></button>` +
	`<button type="button" data-action="message" data-zone="message"><span data-zone="message-label">{{.Message}}</span></button>` +
	`<a class="pm-popup__details" data-zone="details">{{.Details}}</a>` +
	`</div></div>`

const fallbackTemplate = `<div class="pm-popup pm-popup--minimal" data-zone="root" data-entity="{{.ID}}">` +
	`<div class="pm-popup__title" data-zone="title">{{.Title}}</div>` +
	`<div class="pm-popup__price" data-zone="price">{{.Price}}</div></div>`

type popupView struct {
	ID      string
	Title   string
	Price   string
	City    string
	Type    string
	Premium string
	Save    string
	Message string
	Details string
}

// Renderer turns an entity into popup markup.
type Renderer struct {
	full     *template.Template
	fallback *template.Template
	loc      Localizer
}

// NewRenderer parses the popup templates. A nil localizer renders message
// keys.
func NewRenderer(loc Localizer) *Renderer {
	if loc == nil {
		loc = keyLocalizer{}
	}

	return &Renderer{
		full:     template.Must(template.New("popup").Parse(popupTemplate)),
		fallback: template.Must(template.New("fallback").Parse(fallbackTemplate)),
		loc:      loc,
	}
}

func (r *Renderer) view(e MapEntity) popupView {
	v := popupView{
		ID:      e.ID,
		Title:   e.Title,
		Price:   r.loc.Price(e.Price),
		City:    e.City,
		Save:    r.loc.Text(MsgPopupSave),
		Message: r.loc.Text(MsgPopupMessage),
		Details: r.loc.Text(MsgPopupDetails),
	}

	switch strings.ToLower(e.ListingType) {
	case "sale", "sell", "vente":
		v.Type = r.loc.Text(MsgListingSale)
	case "rent", "rental", "location":
		v.Type = r.loc.Text(MsgListingRent)
	}

	if e.IsPremium {
		v.Premium = r.loc.Text(MsgPopupPremium)
	}

	return v
}

// Render produces the full popup.
func (r *Renderer) Render(e MapEntity) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &RenderError{EntityID: e.ID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	var buf bytes.Buffer
	if err := r.full.Execute(&buf, r.view(e)); err != nil {
		return "", &RenderError{EntityID: e.ID, Err: err}
	}

	return buf.String(), nil
}

// RenderFallback produces the minimal title and price popup.
func (r *Renderer) RenderFallback(e MapEntity) (string, error) {
	var buf bytes.Buffer
	if err := r.fallback.Execute(&buf, popupView{
		ID:    e.ID,
		Title: e.Title,
		Price: textutils.FormatInt(e.Price),
	}); err != nil {
		return "", &RenderError{EntityID: e.ID, Err: err}
	}

	return buf.String(), nil
}
