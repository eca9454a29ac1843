package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// ErrDegenerate is returned when a set of points does not define a surface
var ErrDegenerate = errors.New("degenerate geometry: not a polygon")

// TOLERANCE_GEOG is the default tolerance (in degrees) used to simplify footprints
var TOLERANCE_GEOG = 0.001

// GeosToGeom generates a geom.Geometry from a geos.Geometry
func GeosToGeom(g *geos.Geometry) (geom.Geometry, error) {
	wkt, err := g.ToWKT()
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.ToWKT: %w", err)
	}
	geometry, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.DecodeString: %w", err)
	}

	return geometry, nil
}

func toCoords(points [][2]float64) []geos.Coord {
	coords := make([]geos.Coord, len(points))
	for i, p := range points {
		coords[i] = geos.NewCoord(p[0], p[1])
	}
	return coords
}

func fromCoords(coords []geos.Coord) [][2]float64 {
	points := make([][2]float64, len(coords))
	for i, c := range coords {
		points[i] = [2]float64{c.X, c.Y}
	}
	return points
}

// shell returns the closed exterior ring of a polygon
func shell(g *geos.Geometry) ([][2]float64, error) {
	gtype, err := g.Type()
	if err != nil {
		return nil, fmt.Errorf("Type: %w", err)
	}
	if gtype != geos.POLYGON {
		return nil, ErrDegenerate
	}
	ring, err := g.Shell()
	if err != nil {
		return nil, fmt.Errorf("Shell: %w", err)
	}
	coords, err := ring.Coords()
	if err != nil {
		return nil, fmt.Errorf("Coords: %w", err)
	}
	return CloseRing(fromCoords(coords)), nil
}

// ConvexHull returns the closed exterior ring of the convex hull of the points
// Returns ErrDegenerate if the points are aligned (or less than 3)
func ConvexHull(points [][2]float64) ([][2]float64, error) {
	if len(points) < 3 {
		return nil, ErrDegenerate
	}
	geoms := make([]*geos.Geometry, 0, len(points))
	for _, c := range toCoords(points) {
		p, err := geos.NewPoint(c)
		if err != nil {
			return nil, fmt.Errorf("ConvexHull.NewPoint: %w", err)
		}
		geoms = append(geoms, p)
	}
	mp, err := geos.NewCollection(geos.MULTIPOINT, geoms...)
	if err != nil {
		return nil, fmt.Errorf("ConvexHull.NewCollection: %w", err)
	}
	hull, err := mp.ConvexHull()
	if err != nil {
		return nil, fmt.Errorf("ConvexHull: %w", err)
	}
	ring, err := shell(hull)
	if err != nil {
		return nil, fmt.Errorf("ConvexHull.%w", err)
	}
	return ring, nil
}

// SimplifyRing simplifies the closed ring with the given tolerance (Douglas-Peucker)
func SimplifyRing(ring [][2]float64, tolerance float64) ([][2]float64, error) {
	ring = CloseRing(ring)
	if len(ring) < 4 {
		return nil, ErrDegenerate
	}
	polygon, err := geos.NewPolygon(toCoords(ring))
	if err != nil {
		return nil, fmt.Errorf("SimplifyRing.NewPolygon: %w", err)
	}
	simplified, err := polygon.Simplify(tolerance)
	if err != nil {
		return nil, fmt.Errorf("SimplifyRing.Simplify: %w", err)
	}
	res, err := shell(simplified)
	if err != nil {
		return nil, fmt.Errorf("SimplifyRing.%w", err)
	}
	return res, nil
}

// CloseRing appends the first point at the end of the ring if needed
func CloseRing(ring [][2]float64) [][2]float64 {
	if len(ring) == 0 || ring[0] == ring[len(ring)-1] {
		return ring
	}
	closed := make([][2]float64, len(ring), len(ring)+1)
	copy(closed, ring)
	return append(closed, ring[0])
}

// exteriorRings returns the exterior rings of the polygons of g, in order
func exteriorRings(g geom.Geometry) [][][2]float64 {
	switch g := g.(type) {
	case geom.Polygon:
		if len(g) > 0 && len(g[0]) > 0 {
			return [][][2]float64{g[0]}
		}
	case geom.MultiPolygon:
		var rings [][][2]float64
		for _, p := range g {
			rings = append(rings, exteriorRings(geom.Polygon(p))...)
		}
		return rings
	case geom.Collection:
		var rings [][][2]float64
		for _, sub := range g {
			rings = append(rings, exteriorRings(sub)...)
		}
		return rings
	}
	return nil
}

// FirstPolygon returns the closed exterior ring of the first polygon of a (multi)polygon or a collection
func FirstPolygon(g geom.Geometry) ([][2]float64, error) {
	rings := exteriorRings(g)
	if len(rings) == 0 {
		return nil, ErrDegenerate
	}
	return CloseRing(rings[0]), nil
}

// LargestPolygon returns the closed exterior ring with the largest area of a (multi)polygon or a collection
func LargestPolygon(g geom.Geometry) ([][2]float64, error) {
	var best [][2]float64
	bestArea := -1.0
	for _, ring := range exteriorRings(g) {
		if a := Area(ring); a > bestArea {
			best, bestArea = ring, a
		}
	}
	if best == nil {
		return nil, ErrDegenerate
	}
	return CloseRing(best), nil
}

// Area returns the planar area of the ring (shoelace formula)
func Area(ring [][2]float64) float64 {
	ring = CloseRing(ring)
	var a float64
	for i := 1; i < len(ring); i++ {
		a += ring[i-1][0]*ring[i][1] - ring[i][0]*ring[i-1][1]
	}
	return math.Abs(a) / 2
}
