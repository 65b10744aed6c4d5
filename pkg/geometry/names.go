// Package geometry turns atlas annotations into region identities and
// pixel masks: name and hemisphere parsing, polygon repair and clipping to
// the image, and all-touched rasterization.
package geometry

import (
	"fmt"
	"regexp"
	"strings"

	"roilifetime/internal/models"
)

// UnknownArea is the name given to features without any usable label
const UnknownArea = "unknown_area"

// layerPattern matches a trailing cortical layer token
var layerPattern = regexp.MustCompile(`(?i)^(.*?)(1|2/3|5a|5b|5|6a|6b|6)$`)

var sideTokens = map[string]models.Side{
	"left":  models.SideLeft,
	"right": models.SideRight,
}

// ParseAreaSide reads the area name and hemisphere from a feature's
// properties. Classification tokens equal to "left" or "right" (any case)
// set the side; the first other token is the area. Without one, the "name"
// property is used, and failing that UnknownArea.
func ParseAreaSide(props map[string]interface{}) (string, models.Side) {
	side := models.SideUnspecified
	area := ""

	for _, tok := range classificationNames(props) {
		if s, ok := sideTokens[strings.ToLower(tok)]; ok {
			if side == models.SideUnspecified {
				side = s
			}
			continue
		}
		if area == "" && tok != "" {
			area = tok
		}
	}

	if area == "" {
		area = token(props["name"])
	}
	if area == "" {
		area = UnknownArea
	}

	return area, side
}

// NormalizeName merges a layer-suffixed area into "<prefix>_<layer>".
// Names without a layer suffix are returned trimmed.
func NormalizeName(area string) string {
	trimmed := strings.TrimSpace(area)
	m := layerPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return trimmed
	}
	prefix := strings.TrimRight(m[1], "_- ")
	return prefix + "_" + m[2]
}

// classificationNames returns the trimmed classification tokens of a feature
func classificationNames(props map[string]interface{}) []string {
	cls, ok := props["classification"].(map[string]interface{})
	if !ok {
		return nil
	}

	var out []string
	switch names := cls["names"].(type) {
	case []interface{}:
		for _, n := range names {
			out = append(out, token(n))
		}
	case []string:
		for _, n := range names {
			out = append(out, strings.TrimSpace(n))
		}
	}

	// single-class objects only carry "name"
	if len(out) == 0 {
		if n := token(cls["name"]); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func token(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
