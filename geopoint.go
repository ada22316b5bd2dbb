// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package docingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/elastic/go-docingest/csvreader"
)

// geoPointAssembler folds a latitude and a longitude column into a single
// geo_point field.
type geoPointAssembler struct {
	field    string
	lat, lon int
	excluded []bool
}

// newGeoPointAssembler finds the latitude and longitude columns in header.
// When several columns match, the last one wins. Every matching column is
// excluded from the flat fields.
func newGeoPointAssembler(header []string, latNames, lonNames, field string) *geoPointAssembler {
	latSet := fieldNameSet(defaultString(latNames, "latitude,lat"))
	lonSet := fieldNameSet(defaultString(lonNames, "longitude,lon"))
	g := &geoPointAssembler{
		field:    field,
		lat:      -1,
		lon:      -1,
		excluded: make([]bool, len(header)),
	}
	for i, name := range header {
		name = strings.ToLower(name)
		if _, ok := latSet[name]; ok {
			g.lat = i
			g.excluded[i] = true
		}
		if _, ok := lonSet[name]; ok {
			g.lon = i
			g.excluded[i] = true
		}
	}
	return g
}

func (g *geoPointAssembler) excludes(i int) bool {
	return i < len(g.excluded) && g.excluded[i]
}

// point returns the geo point of row. It returns false when either column
// is missing or is not a finite number.
func (g *geoPointAssembler) point(row []csvreader.Field) (GeoPoint, bool) {
	if g.lat < 0 || g.lon < 0 || g.lat >= len(row) || g.lon >= len(row) {
		return GeoPoint{}, false
	}
	lat, ok := parseCoordinate(row[g.lat].Value)
	if !ok {
		return GeoPoint{}, false
	}
	lon, ok := parseCoordinate(row[g.lon].Value)
	if !ok {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: lat, Lon: lon}, true
}

func parseCoordinate(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func fieldNameSet(list string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, name := range strings.Split(list, ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}
