// Package openapi builds the OpenAPI 3.0 document for the service from
// the live source catalog, so every registered crawler source gets its
// own tagged path entries.
package openapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/internetofwater/nldi-go/internal/config"
	"github.com/internetofwater/nldi-go/internal/navigate"
	"github.com/internetofwater/nldi-go/internal/source"
)

// Document is the root of the specification. Maps keep the builder small;
// key order on the wire is not significant for OpenAPI consumers.
type Document map[string]any

// Build assembles the document for the given configuration and sources.
func Build(cfg config.Config, sources []source.Source) Document {
	root := cfg.RootURL()

	paths := map[string]any{
		"/":                                  pathItem("getLanding", "landing page for this API", nil),
		"/linked-data":                       pathItem("getDataSources", "returns a list of data sources", nil),
		"/linked-data/hydrolocation":         pathItem("getHydrologicLocation", "returns the hydrologic location closest to a provided set of coordinates", []map[string]any{coordsParam()}),
		"/linked-data/comid/position":        pathItem("getFlowlineByCoordinates", "returns the feature closest to a provided set of coordinates", []map[string]any{coordsParam()}),
		"/linked-data/comid/{comid}":         pathItem("getFlowlineByComid", "returns the flowline for the specified comid", []map[string]any{pathParam("comid", "integer", "NHDPlus comid")}),
		"/linked-data/comid/{comid}/navigation/{navigationMode}/flowlines": pathItem(
			"getComidNavigationFlowlines", "returns the flowlines traversed from the comid",
			append(navigationParams(), pathParam("comid", "integer", "NHDPlus comid"))),
	}

	tags := []map[string]any{
		{"name": "linked-data", "description": "linked data endpoints"},
	}

	for _, src := range sources {
		suffix := src.Suffix
		tags = append(tags, map[string]any{
			"name":        suffix,
			"description": src.Name,
		})
		base := fmt.Sprintf("/linked-data/%s", suffix)
		idParam := pathParam("identifier", "string", fmt.Sprintf("%s feature identifier", src.Name))

		paths[base] = taggedPathItem(suffix,
			fmt.Sprintf("get%sFeatures", suffix), fmt.Sprintf("returns registered %s features", src.Name),
			[]map[string]any{queryParam("limit", "integer"), queryParam("offset", "integer")})
		paths[base+"/{identifier}"] = taggedPathItem(suffix,
			fmt.Sprintf("get%sFeature", suffix), fmt.Sprintf("returns a registered %s feature", src.Name),
			[]map[string]any{idParam})
		paths[base+"/{identifier}/basin"] = taggedPathItem(suffix,
			fmt.Sprintf("get%sBasin", suffix), "returns the aggregated basin for the specified feature",
			[]map[string]any{idParam, queryParam("simplified", "boolean"), queryParam("splitCatchment", "boolean")})
		paths[base+"/{identifier}/navigation"] = taggedPathItem(suffix,
			fmt.Sprintf("get%sNavigationModes", suffix), "returns the navigation modes available for the feature",
			[]map[string]any{idParam})
		paths[base+"/{identifier}/navigation/{navigationMode}"] = taggedPathItem(suffix,
			fmt.Sprintf("get%sNavigationTypes", suffix), "returns the data sources available via navigation",
			[]map[string]any{idParam, pathParam("navigationMode", "string", "navigation mode")})
		paths[base+"/{identifier}/navigation/{navigationMode}/flowlines"] = taggedPathItem(suffix,
			fmt.Sprintf("get%sNavigationFlowlines", suffix), "returns the flowlines traversed from the feature",
			append(navigationParams(), idParam))
		paths[base+"/{identifier}/navigation/{navigationMode}/{dataSource}"] = taggedPathItem(suffix,
			fmt.Sprintf("get%sNavigationFeatures", suffix), "returns the features of a data source along the navigation",
			append(navigationParams(), idParam, pathParam("dataSource", "string", "data source suffix")))
	}

	return Document{
		"openapi": "3.0.1",
		"info": map[string]any{
			"title":       cfg.Metadata.Title,
			"description": cfg.Metadata.Description,
			"version":     "1.0.0",
		},
		"servers": []map[string]any{
			{"url": root, "description": cfg.Metadata.Title},
		},
		"tags":  tags,
		"paths": paths,
	}
}

// JSON serializes the document, optionally indented.
func (d Document) JSON(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(d, "", "  ")
	}
	return json.Marshal(d)
}

// YAML serializes the document.
func (d Document) YAML() ([]byte, error) {
	return yaml.Marshal(map[string]any(d))
}

func pathItem(operationID, description string, params []map[string]any) map[string]any {
	return taggedPathItem("linked-data", operationID, description, params)
}

func taggedPathItem(tag, operationID, description string, params []map[string]any) map[string]any {
	get := map[string]any{
		"tags":        []string{tag},
		"operationId": operationID,
		"description": description,
		"responses": map[string]any{
			"200": map[string]any{
				"description": "OK",
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]any{"type": "object"},
					},
				},
			},
		},
	}
	if len(params) > 0 {
		get["parameters"] = params
	}
	return map[string]any{"get": get}
}

func pathParam(name, typ, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "path",
		"required":    true,
		"description": description,
		"schema":      map[string]any{"type": typ},
	}
}

func queryParam(name, typ string) map[string]any {
	return map[string]any{
		"name":     name,
		"in":       "query",
		"required": false,
		"schema":   map[string]any{"type": typ},
	}
}

func coordsParam() map[string]any {
	return map[string]any{
		"name":        "coords",
		"in":          "query",
		"required":    true,
		"description": "WKT point, POINT(lon lat)",
		"schema":      map[string]any{"type": "string"},
	}
}

func navigationParams() []map[string]any {
	modes := make([]string, 0, len(navigate.Modes))
	for _, m := range navigate.Modes {
		modes = append(modes, fmt.Sprintf("%s (%s)", m, m.Description()))
	}
	return []map[string]any{
		pathParam("navigationMode", "string", "navigation mode: "+strings.Join(modes, ", ")),
		queryParam("distance", "number"),
		queryParam("stopComid", "integer"),
		queryParam("trimStart", "boolean"),
		queryParam("trimTolerance", "number"),
		queryParam("excludeGeometry", "boolean"),
	}
}
