// Package prompt resolves themes into prompts and renders them for a user's model.
package prompt

import (
	"strings"

	"github.com/cuongbtq/photoshot-be/internal/domain"
)

// Placeholder marks where the subject of the fine-tuned model goes
const Placeholder = "@me"

// DefaultNegative is used when no negative prompt is configured
const DefaultNegative = "cropped, deformed, bad anatomy, disfigured, poorly drawn face, mutation, mutated, extra limb, ugly, " +
	"poorly drawn hands, missing limb, floating limbs, disconnected limbs, malformed hands, blurry, watermark, " +
	"out of focus, long neck, long body, mutated hands and fingers, out of frame, blender, doll, cropped, low-res"

// DefaultThemes is the built-in catalogue, overridable from configuration
var DefaultThemes = map[string]string{
	"astronaut":   "closeup portrait of @me as an astronaut, nasa suit, helmet under arm, space station background, cinematic lighting, 8k",
	"viking":      "portrait of @me as a viking warrior, braided hair, fur cloak, snowy fjord, dramatic light, highly detailed",
	"cyberpunk":   "portrait of @me in a cyberpunk city at night, neon lights, rain, reflective jacket, sharp focus",
	"business":    "professional headshot of @me, business suit, studio lighting, neutral background, photorealistic",
	"superhero":   "@me as a superhero, flowing cape, city skyline, comic book style, dynamic pose, vibrant colors",
	"renaissance": "oil painting of @me in renaissance clothing, by leonardo da vinci, museum quality, soft light",
}

// Catalog holds the theme prompts and rendering settings
type Catalog struct {
	themes        map[string]string
	negative      string
	instanceToken string
}

// NewCatalog builds a catalog. Configured themes are layered over
// DefaultThemes; empty arguments fall back to the defaults.
func NewCatalog(themes map[string]string, negative, instanceToken string) *Catalog {
	normalized := make(map[string]string, len(DefaultThemes)+len(themes))
	for _, set := range []map[string]string{DefaultThemes, themes} {
		for name, text := range set {
			normalized[strings.ToLower(strings.TrimSpace(name))] = text
		}
	}
	if strings.TrimSpace(negative) == "" {
		negative = DefaultNegative
	}
	if strings.TrimSpace(instanceToken) == "" {
		instanceToken = "zwx"
	}
	return &Catalog{
		themes:        normalized,
		negative:      negative,
		instanceToken: instanceToken,
	}
}

// Resolve picks the prompt for a request. A theme takes precedence over an
// explicit prompt; an unknown theme or empty result fails with ErrPromptMissing.
func (c *Catalog) Resolve(theme, explicit string) (string, error) {
	prompt := explicit
	if theme = strings.TrimSpace(theme); theme != "" {
		prompt = c.themes[strings.ToLower(theme)]
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", domain.ErrPromptMissing
	}
	return prompt, nil
}

// Render substitutes the model subject for the placeholder
func (c *Catalog) Render(prompt, instanceClass string) string {
	subject := strings.TrimSpace(c.instanceToken + " " + instanceClass)
	return strings.ReplaceAll(prompt, Placeholder, subject)
}

// Negative returns the negative prompt sent with every job
func (c *Catalog) Negative() string {
	return c.negative
}

// Themes lists the configured theme names
func (c *Catalog) Themes() []string {
	names := make([]string, 0, len(c.themes))
	for name := range c.themes {
		names = append(names, name)
	}
	return names
}
