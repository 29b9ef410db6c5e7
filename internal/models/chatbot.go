package models

// Chatbot is the persisted configuration of one embeddable chat widget.
// JSON and BSON names are the wire contract shared with the dashboard and
// the local storage file.
type Chatbot struct {
	ID                  string `json:"id,omitempty" bson:"id,omitempty"`
	UniqueID            string `json:"uniqueId" bson:"uniqueId" binding:"required"`
	Name                string `json:"name" bson:"name" binding:"required"`
	ChatLogoColor       string `json:"chatLogoColor,omitempty" bson:"chatLogoColor,omitempty"`
	ChatLogoImage       string `json:"chatLogoImage,omitempty" bson:"chatLogoImage,omitempty"`
	IconAvatarImage     string `json:"iconAvatarImage,omitempty" bson:"iconAvatarImage,omitempty"`
	StaticImage         string `json:"staticImage,omitempty" bson:"staticImage,omitempty"`
	ChatHeaderColor     string `json:"chatHeaderColor,omitempty" bson:"chatHeaderColor,omitempty"`
	ChatBgGradientStart string `json:"chatBgGradientStart,omitempty" bson:"chatBgGradientStart,omitempty"`
	ChatBgGradientEnd   string `json:"chatBgGradientEnd,omitempty" bson:"chatBgGradientEnd,omitempty"`
	BodyBackgroundImage string `json:"bodyBackgroundImage,omitempty" bson:"bodyBackgroundImage,omitempty"`
	WelcomeText         string `json:"welcomeText,omitempty" bson:"welcomeText,omitempty"`
	APIKey              string `json:"apiKey,omitempty" bson:"apiKey,omitempty"`
	AnalyticsURL        string `json:"analyticsUrl,omitempty" bson:"analyticsUrl,omitempty"`
}

// ChatbotPatch is a partial update. Nil fields are left untouched; the
// uniqueId is the record identity and cannot be patched.
type ChatbotPatch struct {
	ID                  *string `json:"id,omitempty"`
	Name                *string `json:"name,omitempty"`
	ChatLogoColor       *string `json:"chatLogoColor,omitempty"`
	ChatLogoImage       *string `json:"chatLogoImage,omitempty"`
	IconAvatarImage     *string `json:"iconAvatarImage,omitempty"`
	StaticImage         *string `json:"staticImage,omitempty"`
	ChatHeaderColor     *string `json:"chatHeaderColor,omitempty"`
	ChatBgGradientStart *string `json:"chatBgGradientStart,omitempty"`
	ChatBgGradientEnd   *string `json:"chatBgGradientEnd,omitempty"`
	BodyBackgroundImage *string `json:"bodyBackgroundImage,omitempty"`
	WelcomeText         *string `json:"welcomeText,omitempty"`
	APIKey              *string `json:"apiKey,omitempty"`
	AnalyticsURL        *string `json:"analyticsUrl,omitempty"`
}

func (p ChatbotPatch) fields(c *Chatbot) []struct {
	src *string
	dst *string
	key string
} {
	return []struct {
		src *string
		dst *string
		key string
	}{
		{p.ID, &c.ID, "id"},
		{p.Name, &c.Name, "name"},
		{p.ChatLogoColor, &c.ChatLogoColor, "chatLogoColor"},
		{p.ChatLogoImage, &c.ChatLogoImage, "chatLogoImage"},
		{p.IconAvatarImage, &c.IconAvatarImage, "iconAvatarImage"},
		{p.StaticImage, &c.StaticImage, "staticImage"},
		{p.ChatHeaderColor, &c.ChatHeaderColor, "chatHeaderColor"},
		{p.ChatBgGradientStart, &c.ChatBgGradientStart, "chatBgGradientStart"},
		{p.ChatBgGradientEnd, &c.ChatBgGradientEnd, "chatBgGradientEnd"},
		{p.BodyBackgroundImage, &c.BodyBackgroundImage, "bodyBackgroundImage"},
		{p.WelcomeText, &c.WelcomeText, "welcomeText"},
		{p.APIKey, &c.APIKey, "apiKey"},
		{p.AnalyticsURL, &c.AnalyticsURL, "analyticsUrl"},
	}
}

// Apply overwrites every field present in the patch.
func (p ChatbotPatch) Apply(c *Chatbot) {
	for _, f := range p.fields(c) {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
}

// Set returns the present fields keyed by their wire name.
func (p ChatbotPatch) Set() map[string]string {
	out := make(map[string]string)
	for _, f := range p.fields(&Chatbot{}) {
		if f.src != nil {
			out[f.key] = *f.src
		}
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p ChatbotPatch) IsEmpty() bool {
	return len(p.Set()) == 0
}
